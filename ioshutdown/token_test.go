package ioshutdown_test

import (
	"errors"
	"testing"

	"strubs/cmn"
	"strubs/ioshutdown"
	"strubs/testutil"
)

func TestAbortIdempotent(t *testing.T) {
	var tok ioshutdown.Token
	testutil.CheckFatal(t, tok.ThrowIfAborted())

	tok.Abort("disk failure")
	tok.Abort("second reason should be ignored")

	testutil.Errorf(t, tok.Aborted(), "want Aborted() true after Abort")
	testutil.Errorf(t, tok.Reason() == "disk failure", "reason = %q, want %q", tok.Reason(), "disk failure")

	err := tok.ThrowIfAborted()
	testutil.Fatalf(t, errors.Is(err, cmn.ErrAborted), "want IOABORT, got %v", err)
}
