package gate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charterline/internal/domain"
)

func signed() domain.Contributor {
	return domain.Contributor{
		ID:                 "c-1",
		NDAStatus:          domain.SignatureSigned,
		IPAssignmentStatus: domain.SignatureSigned,
		WorkflowStage:      domain.StageProvisioning,
	}
}

func TestEvaluate(t *testing.T) {
	c := signed()
	assert.Equal(t, AllowedTierRange{Min: 0, Max: 3}, Evaluate(c))

	c.IPAssignmentStatus = domain.SignatureSent
	assert.Equal(t, AllowedTierRange{Min: 0, Max: 0}, Evaluate(c))

	c = signed()
	c.WorkflowStage = domain.StageArchived
	assert.False(t, Evaluate(c).Contains(1))
}

func TestRequestTierChangeRequiresBothSignatures(t *testing.T) {
	for _, status := range []domain.SignatureStatus{domain.SignatureNotSent, domain.SignatureSent, domain.SignatureRevoked, domain.SignatureExpired} {
		c := signed()
		c.NDAStatus = status
		out, err := RequestTierChange(c, 2, "founder")
		var pe domain.PreconditionError
		require.True(t, errors.As(err, &pe), status)
		assert.Equal(t, "agreements.signed", pe.Rule)
		assert.Equal(t, 0, out.AccessTier)
	}
	// tier 0 is always legal
	c := signed()
	c.NDAStatus = domain.SignatureSent
	_, err := RequestTierChange(c, 0, "founder")
	assert.NoError(t, err)
}

func TestRequestTierChange(t *testing.T) {
	out, err := RequestTierChange(signed(), 3, "founder")
	require.NoError(t, err)
	assert.Equal(t, 3, out.AccessTier)

	_, err = RequestTierChange(signed(), 4, "founder")
	var ve domain.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = RequestTierChange(signed(), 1, "")
	assert.True(t, errors.As(err, &ve))
}

func TestRevokeCascade(t *testing.T) {
	c := signed()
	c.AccessTier = 2
	c.AccessLevel = domain.AccessLimited
	c.WorkflowStage = domain.StageWorking
	out, err := Revoke(c, "end of contract")
	require.NoError(t, err)
	assert.Equal(t, 0, out.AccessTier)
	assert.Equal(t, domain.SignatureRevoked, out.NDAStatus)
	assert.Equal(t, domain.SignatureRevoked, out.IPAssignmentStatus)
	assert.Equal(t, domain.StageExit, out.WorkflowStage)
	assert.Equal(t, domain.AccessNone, out.AccessLevel)
	assert.NoError(t, CheckInvariant(out))

	c.WorkflowStage = domain.StageArchived
	_, err = Revoke(c, "again")
	var fe domain.FinalizedError
	assert.True(t, errors.As(err, &fe))
}

func TestCheckInvariant(t *testing.T) {
	c := signed()
	c.AccessTier = 1
	assert.NoError(t, CheckInvariant(c))
	c.NDAStatus = domain.SignatureRevoked
	var ie domain.InvariantViolationError
	assert.True(t, errors.As(CheckInvariant(c), &ie))
}
