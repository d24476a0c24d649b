// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordOperation(t *testing.T) {
	Enable()
	OperationsTotal.Reset()
	OperationDuration.Reset()

	RecordOperation(OpRegisterBegin, StatusSuccess, 0.01)

	if count := testutil.CollectAndCount(OperationsTotal); count != 1 {
		t.Errorf("Expected 1 operation series, got %d", count)
	}
	if count := testutil.CollectAndCount(OperationDuration); count != 1 {
		t.Errorf("Expected 1 histogram series, got %d", count)
	}

	RecordOperation(OpAuthenticateFinish, StatusError, 0.2)

	if count := testutil.CollectAndCount(OperationsTotal); count != 2 {
		t.Errorf("Expected 2 operation series, got %d", count)
	}
	if v := testutil.ToFloat64(OperationsTotal.WithLabelValues(OpAuthenticateFinish, StatusError)); v != 1 {
		t.Errorf("Expected counter value 1, got %v", v)
	}
}

func TestRecordOperationWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()
	OperationsTotal.Reset()

	RecordOperation(OpRegisterFinish, StatusSuccess, 0.5)

	if count := testutil.CollectAndCount(OperationsTotal); count != 0 {
		t.Errorf("Expected 0 operations when disabled, got %d", count)
	}
}

func TestRecordError(t *testing.T) {
	Enable()
	ErrorsTotal.Reset()

	RecordError(OpAuthenticateFinish, "verification_failed")
	RecordError(OpAuthenticateFinish, "verification_failed")
	RecordError(OpRegisterFinish, "duplicate_credential")

	if count := testutil.CollectAndCount(ErrorsTotal); count != 2 {
		t.Errorf("Expected 2 error series, got %d", count)
	}
	if v := testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpAuthenticateFinish, "verification_failed")); v != 2 {
		t.Errorf("Expected 2 verification failures, got %v", v)
	}
}

func TestRecordHeal(t *testing.T) {
	Enable()
	HealedCredentialsTotal.Reset()

	RecordHeal(0, 0, false)
	if count := testutil.CollectAndCount(HealedCredentialsTotal); count != 0 {
		t.Errorf("Expected no series for a clean pass, got %d", count)
	}

	RecordHeal(2, 1, true)
	if v := testutil.ToFloat64(HealedCredentialsTotal.WithLabelValues(ActionRewritten)); v != 2 {
		t.Errorf("Expected 2 rewritten, got %v", v)
	}
	if v := testutil.ToFloat64(HealedCredentialsTotal.WithLabelValues(ActionDiscarded)); v != 1 {
		t.Errorf("Expected 1 discarded, got %v", v)
	}
	if v := testutil.ToFloat64(HealedCredentialsTotal.WithLabelValues(ActionReset)); v != 1 {
		t.Errorf("Expected 1 reset, got %v", v)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	Enable()
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "/api/passkey/register/start", "200", 0.05)

	if count := testutil.CollectAndCount(HTTPRequestsTotal); count != 1 {
		t.Errorf("Expected 1 HTTP request series, got %d", count)
	}
	if count := testutil.CollectAndCount(HTTPRequestDuration); count != 1 {
		t.Errorf("Expected 1 HTTP histogram series, got %d", count)
	}
}

func TestActiveConnections(t *testing.T) {
	Enable()
	ActiveConnections.Reset()

	IncrementActiveConnections(ProtocolHTTP)
	IncrementActiveConnections(ProtocolHTTP)
	DecrementActiveConnections(ProtocolHTTP)

	if v := testutil.ToFloat64(ActiveConnections.WithLabelValues(ProtocolHTTP)); v != 1 {
		t.Errorf("Expected 1 active connection, got %v", v)
	}
}

func TestSetStorageHealth(t *testing.T) {
	Enable()
	StorageHealthy.Reset()

	SetStorageHealth("redis", true)
	if v := testutil.ToFloat64(StorageHealthy.WithLabelValues("redis")); v != 1 {
		t.Errorf("Expected healthy gauge 1, got %v", v)
	}

	SetStorageHealth("redis", false)
	if v := testutil.ToFloat64(StorageHealthy.WithLabelValues("redis")); v != 0 {
		t.Errorf("Expected healthy gauge 0, got %v", v)
	}
}

func TestStatusFor(t *testing.T) {
	if got := StatusFor(nil); got != StatusSuccess {
		t.Errorf("Expected %q, got %q", StatusSuccess, got)
	}
	if got := StatusFor(errors.New("boom")); got != StatusError {
		t.Errorf("Expected %q, got %q", StatusError, got)
	}
}

func TestRecordRateLimited(t *testing.T) {
	Enable()
	before := testutil.ToFloat64(RateLimitedTotal)

	RecordRateLimited()
	if v := testutil.ToFloat64(RateLimitedTotal); v != before+1 {
		t.Errorf("Expected %v, got %v", before+1, v)
	}

	Disable()
	defer Enable()
	RecordRateLimited()
	if v := testutil.ToFloat64(RateLimitedTotal); v != before+1 {
		t.Errorf("Expected counter unchanged when disabled, got %v", v)
	}
}
