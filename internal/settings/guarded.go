package settings

import (
	"context"

	"github.com/noah-isme/maison-parfum/internal/resilience"
)

// GuardedStore fails fast while the breaker is open so a database outage
// does not add a query timeout to every quote. Service then serves defaults.
type GuardedStore struct {
	Store   Store
	Breaker *resilience.Breaker
}

// Values implements Store.
func (g GuardedStore) Values(ctx context.Context, keys []string) (map[string]string, error) {
	var out map[string]string
	err := g.Breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.Store.Values(ctx, keys)
		return err
	})
	return out, err
}
