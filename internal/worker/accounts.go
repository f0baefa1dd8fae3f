package worker

import (
	"github.com/duskforge/genforge/pkg/account"
	"github.com/duskforge/genforge/pkg/provider"
)

// toProviderAccount narrows the domain Account down to the minimal view an
// adapter needs to act on a caller's behalf.
func toProviderAccount(acc account.Account) provider.Account {
	return provider.Account{
		ID:          acc.ID.String(),
		WorkspaceID: acc.WorkspaceID.String(),
		Credentials: acc.Credentials,
	}
}
