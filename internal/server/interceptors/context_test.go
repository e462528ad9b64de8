package interceptors

import (
	"context"
	"testing"
)

func TestPrincipalFrom_Empty(t *testing.T) {
	if _, ok := PrincipalFrom(context.Background()); ok {
		t.Error("expected no principal")
	}
	if _, ok := PrincipalFrom(WithPrincipal(context.Background(), nil)); ok {
		t.Error("nil principal must not count as authenticated")
	}
}
