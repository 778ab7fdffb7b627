package core

import (
	"math/big"

	"DscLedger/internal/dscerr"

	"github.com/google/uuid"
)

// StableCoin is the issuance side of an accepted operation. The engine
// owns the debt bookkeeping; implementations move the actual tokens.
// Each call must be atomic: a returned error means nothing moved.
type StableCoin interface {
	// Mint delivers freshly issued stable asset to the account's wallet.
	Mint(account uuid.UUID, amount *big.Int) error
	// Burn pulls the amount from the account's wallet and destroys it.
	Burn(account uuid.UUID, amount *big.Int) error
}

// CollateralBank is the custody side. Pull draws collateral from the
// account's wallet into custody, Release hands it back.
type CollateralBank interface {
	Pull(account uuid.UUID, asset string, amount *big.Int) error
	Release(account uuid.UUID, asset string, amount *big.Int) error
}

// NoopStableCoin acknowledges issuance without side effects, for
// deployments where this service is the system of record and token
// movement settles elsewhere.
type NoopStableCoin struct{}

func (NoopStableCoin) Mint(uuid.UUID, *big.Int) error { return nil }
func (NoopStableCoin) Burn(uuid.UUID, *big.Int) error { return nil }

// NoopCollateralBank acknowledges custody movements without side effects.
type NoopCollateralBank struct{}

func (NoopCollateralBank) Pull(uuid.UUID, string, *big.Int) error    { return nil }
func (NoopCollateralBank) Release(uuid.UUID, string, *big.Int) error { return nil }

// capAction is one external step of an accepted operation, paired with
// the compensation that undoes it when a later step fails.
type capAction struct {
	run  func() error
	undo func() error
	fail error // sentinel wrapped around a run failure
}

func pullAction(bank CollateralBank, account uuid.UUID, asset string, amount *big.Int) capAction {
	return capAction{
		run:  func() error { return bank.Pull(account, asset, amount) },
		undo: func() error { return bank.Release(account, asset, amount) },
		fail: dscerr.ErrTransferFailed,
	}
}

func releaseAction(bank CollateralBank, account uuid.UUID, asset string, amount *big.Int) capAction {
	return capAction{
		run:  func() error { return bank.Release(account, asset, amount) },
		undo: func() error { return bank.Pull(account, asset, amount) },
		fail: dscerr.ErrTransferFailed,
	}
}

func mintAction(coin StableCoin, account uuid.UUID, amount *big.Int) capAction {
	return capAction{
		run:  func() error { return coin.Mint(account, amount) },
		undo: func() error { return coin.Burn(account, amount) },
		fail: dscerr.ErrMintFailed,
	}
}

func burnAction(coin StableCoin, account uuid.UUID, amount *big.Int) capAction {
	return capAction{
		run:  func() error { return coin.Burn(account, amount) },
		undo: func() error { return coin.Mint(account, amount) },
		fail: dscerr.ErrTransferFailed,
	}
}
