package servicerequests_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-security-portal/internal/utils"
	"github.com/jrsteele09/go-security-portal/servicerequests"
	"github.com/stretchr/testify/require"
)

func TestRequest_Actions(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("withdraw only while pending", func(t *testing.T) {
		r := &servicerequests.Request{Status: servicerequests.StatusPendingApproval}
		require.True(t, r.CanWithdraw())
		r.Status = servicerequests.StatusAwaitingPayment
		require.False(t, r.CanWithdraw())
	})

	t.Run("pay inside window", func(t *testing.T) {
		r := &servicerequests.Request{
			Status:     servicerequests.StatusAwaitingPayment,
			ApprovedAt: utils.Ptr(now.Add(-time.Hour)),
		}
		require.True(t, r.CanPay(now))
		require.Equal(t, 2*time.Hour, r.PaymentTimeLeft(now))
	})

	t.Run("window closed", func(t *testing.T) {
		r := &servicerequests.Request{
			Status:     servicerequests.StatusAwaitingPayment,
			ApprovedAt: utils.Ptr(now.Add(-4 * time.Hour)),
		}
		require.False(t, r.CanPay(now))
		require.Zero(t, r.PaymentTimeLeft(now))
	})

	t.Run("not approved", func(t *testing.T) {
		r := &servicerequests.Request{Status: servicerequests.StatusAwaitingPayment}
		require.False(t, r.CanPay(now))
	})

	t.Run("report", func(t *testing.T) {
		r := &servicerequests.Request{ID: 9, Status: servicerequests.StatusCompleted}
		require.False(t, r.HasReport())
		r.ReportFile = utils.Ptr("http://api/media/reports/9.pdf")
		require.True(t, r.HasReport())
		require.Equal(t, "http://api/media/reports/9.pdf", r.ReportLink())
		r.ReportURL = utils.Ptr("http://api/reports/9/download")
		require.Equal(t, "http://api/reports/9/download", r.ReportLink())
		require.Equal(t, "report-9.pdf", r.ReportFileName())
	})
}

func TestStatus_Label(t *testing.T) {
	require.Equal(t, "PENDING APPROVAL", servicerequests.StatusPendingApproval.Label())
	require.Equal(t, "orange", servicerequests.StatusAwaitingPayment.Colour())
	require.Equal(t, "gray", servicerequests.Status("unknown").Colour())
}

func TestDraft_Validate(t *testing.T) {
	valid := servicerequests.Draft{ServiceID: 1, URL: "https://target.example", Roles: "admin", Credentials: "admin:pw"}
	require.NoError(t, valid.Validate())

	missing := valid
	missing.Credentials = " "
	require.EqualError(t, missing.Validate(), "login credentials are required")

	noService := valid
	noService.ServiceID = 0
	require.Error(t, noService.Validate())
}
