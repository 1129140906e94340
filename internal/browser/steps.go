package browser

import (
	"context"

	"github.com/berth-dev/nftbatch/internal/execute"
)

// Steps runs the login protocol against a real browser.
type Steps struct {
	Options     Options
	Marketplace *Marketplace
	// Password unlocks or creates the wallet; RecoveryPhrase imports it into
	// a fresh profile.
	Password       string
	RecoveryPhrase string
	// PrivateKey, if set, is imported as an extra account once the wallet
	// is unlocked.
	PrivateKey string
}

var _ execute.LoginSteps = (*Steps)(nil)

func (st *Steps) LaunchBrowser(ctx context.Context) (execute.Session, error) {
	s, err := Launch(ctx, st.Options)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (st *Steps) UnlockWallet(ctx context.Context, sess execute.Session) error {
	s, err := asSession(sess)
	if err != nil {
		return err
	}
	wallet := st.Marketplace.Wallet
	if err := wallet.Unlock(ctx, s, st.Password, st.RecoveryPhrase); err != nil {
		return err
	}
	if st.PrivateKey != "" {
		return wallet.ImportKey(ctx, s, st.PrivateKey)
	}
	return nil
}

func (st *Steps) AuthenticateMarketplace(ctx context.Context, sess execute.Session) error {
	s, err := asSession(sess)
	if err != nil {
		return err
	}
	return st.Marketplace.Login(ctx, s)
}
