package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ calls []string }

func (r *recorder) step(name string, policy Policy, fail error, compFail error) Step {
	return Step{
		Name:   name,
		Policy: policy,
		Action: func(ctx context.Context) error {
			r.calls = append(r.calls, "do:"+name)
			return fail
		},
		Compensate: func(ctx context.Context) error {
			r.calls = append(r.calls, "undo:"+name)
			return compFail
		},
	}
}

func TestRunAllStepsSucceed(t *testing.T) {
	r := &recorder{}
	err := New("signup", nil,
		r.step("a", Fatal, nil, nil),
		r.step("b", Fatal, nil, nil),
	).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"do:a", "do:b"}, r.calls)
}

func TestRunCompensatesInReverseOrder(t *testing.T) {
	r := &recorder{}
	boom := errors.New("smtp down")
	err := New("signup", nil,
		r.step("account", Fatal, nil, nil),
		r.step("profile", Tolerated, nil, nil),
		r.step("otp", Fatal, nil, nil),
		r.step("email", Fatal, boom, nil),
	).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{
		"do:account", "do:profile", "do:otp", "do:email",
		"undo:otp", "undo:profile", "undo:account",
	}, r.calls)

	serr, ok := AsStepError(err)
	require.True(t, ok)
	assert.Equal(t, "email", serr.Step)
	assert.Equal(t, []string{"otp", "profile", "account"}, serr.Compensated)
	assert.False(t, serr.CompensationFailed())
}

func TestRunToleratedFailureContinues(t *testing.T) {
	r := &recorder{}
	var failed []string
	err := New("signup", nil,
		r.step("account", Fatal, nil, nil),
		r.step("profile", Tolerated, errors.New("insert failed"), nil),
		r.step("otp", Fatal, nil, nil),
	).WithHooks(Hooks{OnStepFailed: func(step string, p Policy, err error) {
		failed = append(failed, step+":"+p.String())
	}}).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"do:account", "do:profile", "do:otp"}, r.calls)
	assert.Equal(t, []string{"profile:tolerated"}, failed)
}

func TestRunFailedStepIsNotCompensated(t *testing.T) {
	r := &recorder{}
	err := New("signup", nil,
		r.step("account", Fatal, nil, nil),
		r.step("otp", Fatal, errors.New("insert failed"), nil),
	).Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, []string{"do:account", "do:otp", "undo:account"}, r.calls)
}

func TestRunReportsCompensationFailure(t *testing.T) {
	r := &recorder{}
	var hooked []string
	err := New("signup", nil,
		r.step("account", Fatal, nil, errors.New("delete failed")),
		r.step("email", Fatal, errors.New("smtp down"), nil),
	).WithHooks(Hooks{OnCompensationFailed: func(step string, err error) {
		hooked = append(hooked, step)
	}}).Run(context.Background())

	serr, ok := AsStepError(err)
	require.True(t, ok)
	assert.True(t, serr.CompensationFailed())
	assert.Contains(t, serr.Uncompensated, "account")
	assert.Equal(t, []string{"account"}, hooked)
}

func TestRunCompensatesAfterCancellation(t *testing.T) {
	r := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	steps := []Step{
		r.step("account", Fatal, nil, nil),
		{
			Name: "cancel",
			Action: func(ctx context.Context) error {
				cancel()
				return ctx.Err()
			},
		},
	}
	err := New("signup", nil, steps...).Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"do:account", "undo:account"}, r.calls)
}
