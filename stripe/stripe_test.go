package stripe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfirmedWithSecret(t *testing.T) {
	succeeded := &Intent{ID: "pi_1", ClientSecret: "pi_1_secret_x", Status: StatusSucceeded}

	// a retried confirm with the right secret converges instead of 404ing
	assert.True(t, ConfirmedWithSecret(succeeded, "pi_1_secret_x"))

	assert.False(t, ConfirmedWithSecret(succeeded, "wrong_secret"))
	assert.False(t, ConfirmedWithSecret(succeeded, ""))
	assert.False(t, ConfirmedWithSecret(nil, "pi_1_secret_x"))

	for _, status := range []string{StatusRequiresPayment, StatusProcessing, StatusCanceled} {
		intent := &Intent{ID: "pi_1", ClientSecret: "pi_1_secret_x", Status: status}
		assert.False(t, ConfirmedWithSecret(intent, "pi_1_secret_x"), status)
	}
}
