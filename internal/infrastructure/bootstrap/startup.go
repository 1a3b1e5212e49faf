// Package bootstrap runs the checks that must pass before the service accepts traffic.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/erp/tenancy/internal/infrastructure/wiring"
)

// Check is one startup precondition
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// CheckStartup runs every check and returns all failures together.
// Callers must treat a non-nil result as fatal.
func CheckStartup(ctx context.Context, log *zap.Logger, checks ...Check) error {
	if log == nil {
		log = zap.NewNop()
	}

	var result *multierror.Error
	for _, c := range checks {
		if err := c.Run(ctx); err != nil {
			log.Error("Startup check failed", zap.String("check", c.Name), zap.Error(err))
			result = multierror.Append(result, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		log.Info("Startup check passed", zap.String("check", c.Name))
	}
	return result.ErrorOrNil()
}

// ErrorCheck reports an error produced while constructing a component,
// such as the transaction executor's manager guard.
func ErrorCheck(name string, err error) Check {
	return Check{Name: name, Run: func(context.Context) error { return err }}
}

// WiringCheck runs the startup wiring verifier
func WiringCheck(v *wiring.Verifier) Check {
	return Check{Name: "wiring", Run: func(context.Context) error { return v.Verify() }}
}

// NamespaceChecker looks up a namespace in the database catalog
type NamespaceChecker interface {
	NamespaceExists(ctx context.Context, namespace string) (bool, error)
}

// DefaultNamespaceCheck requires the default namespace to exist. It is never
// provisioned on demand.
func DefaultNamespaceCheck(checker NamespaceChecker, namespace string) Check {
	return Check{
		Name: "default-namespace",
		Run: func(ctx context.Context) error {
			exists, err := checker.NamespaceExists(ctx, namespace)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("default namespace %q does not exist", namespace)
			}
			return nil
		},
	}
}
