package order

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"cashback-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestStatusValidAndAllowed(t *testing.T) {
	for _, s := range AllStatuses {
		require.True(t, s.Valid(), s)
	}
	require.False(t, Status("SHIPPED").Valid())
	require.False(t, Status("").Valid())

	require.Equal(t, []Status{StatusApproved, StatusRejected, StatusProofSubmitted}, Allowed(StatusUnderReview))
	require.Empty(t, Allowed(StatusCompleted))

	// callers cannot mutate the graph through the returned slice
	Allowed(StatusCreated)[0] = StatusCompleted
	require.True(t, CanTransition(StatusCreated, StatusRedirected))
}

func TestErrIllegalTransition_ListsAllowedTargets(t *testing.T) {
	var be errutil.BaseError
	require.ErrorAs(t, ErrIllegalTransition(StatusRejected, StatusApproved), &be)
	require.Equal(t, []errutil.Detail{{Field: "to", Message: "allowed: FAILED, PROOF_SUBMITTED"}}, be.Details)

	require.ErrorAs(t, ErrIllegalTransition(StatusFailed, StatusCreated), &be)
	require.Equal(t, "allowed: none", be.Details[0].Message)
}

func TestTransitionHandler_RejectsUnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := newEnv(t, nil)
	o := e.create(t, "shopper-1", "deal-1", "MED_X")
	h := &handler{svc: e.svc}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Params = gin.Params{{Key: "id", Value: strconv.FormatInt(o.ID, 10)}}
	c.Request = httptest.NewRequest(http.MethodPost, "/orders/"+c.Params[0].Value+"/transition",
		strings.NewReader(`{"from":"CREATED","to":"SHIPPED"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	h.transition(c)

	require.Len(t, c.Errors, 1)
	require.Equal(t, ReasonUnknownStatus, errutil.ReasonOf(c.Errors[0].Err))
	require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(c.Errors[0].Err))

	got, err := e.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCreated, got.WorkflowStatus)
}
