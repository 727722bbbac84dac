package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	datummem "github.com/duotrack/substrate/internal/datum/memory"
)

func TestRunDoctorFindsNoViolationsOnAHealthyChain(t *testing.T) {
	ctx := context.Background()
	s := datummem.New()

	a, err := s.Put(ctx, "trace", []byte("A"), "", nil)
	require.NoError(t, err)
	_, err = s.Put(ctx, "trace", []byte("B"), a, nil)
	require.NoError(t, err)

	checked, violations, err := runDoctor(ctx, s, "trace", 100000)
	require.NoError(t, err)
	assert.Equal(t, 2, checked)
	assert.Empty(t, violations)
}

func TestRunDoctorReportsAViolationWhenMaxStepsIsExhausted(t *testing.T) {
	ctx := context.Background()
	s := datummem.New()

	a, err := s.Put(ctx, "trace", []byte("A"), "", nil)
	require.NoError(t, err)
	b, err := s.Put(ctx, "trace", []byte("B"), a, nil)
	require.NoError(t, err)

	// max-steps of 0 forces VerifyAcyclic to treat every non-empty chain
	// as non-terminating, the same failure mode a genuinely cyclic
	// backend would produce.
	checked, violations, err := runDoctor(ctx, s, "trace", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, checked)
	require.Len(t, violations, 2)
	assert.ElementsMatch(t, []string{string(a), string(b)}, []string{string(violations[0].RecordID), string(violations[1].RecordID)})
}

func TestRunDoctorOnEmptyNamespaceChecksNothing(t *testing.T) {
	ctx := context.Background()
	s := datummem.New()

	checked, violations, err := runDoctor(ctx, s, "empty", 100000)
	require.NoError(t, err)
	assert.Equal(t, 0, checked)
	assert.Empty(t, violations)
}
