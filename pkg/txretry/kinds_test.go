package txretry_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/txretry/pkg/txretry"
)

func TestParseErrorKind(t *testing.T) {
	tests := []struct {
		in   string
		want txretry.ErrorKind
	}{
		{"isolation_conflict", txretry.KindIsolationConflict},
		{"Lock-Not-Available", txretry.KindLockNotAvailable},
		{"  connection_exception ", txretry.KindConnectionException},
		{"my_custom_kind", txretry.ErrorKind("my_custom_kind")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := txretry.ParseErrorKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := txretry.ParseErrorKind("  ")
	assert.ErrorIs(t, err, txretry.ErrInvalidConfig)
}

func TestKindSet_Union(t *testing.T) {
	a := txretry.NewKindSet(txretry.KindLockNotAvailable)
	b := txretry.NewKindSet(txretry.KindQueryCanceled)

	u := a.Union(b, txretry.NewKindSet(txretry.KindIsolationConflict))

	assert.True(t, u.Has(txretry.KindLockNotAvailable))
	assert.True(t, u.Has(txretry.KindQueryCanceled))
	assert.True(t, u.Has(txretry.KindIsolationConflict))
	assert.Len(t, a, 1, "union must not modify the receiver")

	var empty txretry.KindSet
	assert.False(t, empty.Has(txretry.KindIsolationConflict))
	assert.Equal(t, []txretry.ErrorKind{
		txretry.KindIsolationConflict,
		txretry.KindLockNotAvailable,
		txretry.KindQueryCanceled,
	}, u.Slice())
}

func TestWithKind(t *testing.T) {
	base := errors.New("boom")
	err := txretry.WithKind(txretry.KindLockNotAvailable, base)

	assert.ErrorIs(t, err, base)
	assert.Equal(t, "boom", err.Error())

	kind, ok := txretry.ExplicitKind(fmt.Errorf("outer: %w", err))
	assert.True(t, ok)
	assert.Equal(t, txretry.KindLockNotAvailable, kind)

	_, ok = txretry.ExplicitKind(base)
	assert.False(t, ok)

	assert.Nil(t, txretry.WithKind(txretry.KindLockNotAvailable, nil))
}
