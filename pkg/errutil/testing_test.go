// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"

	"github.com/pronoia/pronoia/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("AUTH_TOKEN_INVALID").Errorf("bad token")
	errutil.AssertErrorCode(t, err, "AUTH_TOKEN_INVALID")
}

func TestAssertErrorCode_WrappedSentinel(t *testing.T) {
	err := oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(errors.New("invalid email or password"))
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("email", "a@x.com").Errorf("test error")
	errutil.AssertErrorContext(t, err, "email", "a@x.com")
}
