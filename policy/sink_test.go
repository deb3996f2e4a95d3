package policy_test

import (
	"errors"
	"testing"

	"github.com/justapithecus/encore/policy"
	"github.com/justapithecus/encore/types"
)

func TestTee_WritesAllSinks(t *testing.T) {
	primary, mirror := policy.NewStubSink(), policy.NewStubSink()
	primary.RejectKeys["k1"] = errors.New("dup")
	tee := policy.Tee(primary, mirror)

	rejected, err := tee.WriteRows(t.Context(), types.TableUsers, []string{"k0", "k1"}, []types.Row{{"a"}, {"b"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(rejected) != 1 || rejected[0].Key != "k1" {
		t.Errorf("rejected = %+v", rejected)
	}
	if mirror.Stats().RowsWritten != 2 {
		t.Errorf("mirror rows = %d, want 2", mirror.Stats().RowsWritten)
	}

	if err := tee.Close(); err != nil {
		t.Fatal(err)
	}
	if !primary.Stats().Closed || !mirror.Stats().Closed {
		t.Error("tee should close every sink")
	}
}

func TestTee_MirrorFailureIsFatal(t *testing.T) {
	primary, mirror := policy.NewStubSink(), policy.NewStubSink()
	mirror.ErrorOnWrite = errors.New("staging unavailable")
	tee := policy.Tee(primary, mirror)

	if _, err := tee.WriteRows(t.Context(), types.TableTime, []string{"t"}, []types.Row{{"t"}}); err == nil {
		t.Fatal("expected mirror error")
	}
}

func TestRowError(t *testing.T) {
	cause := errors.New("constraint")
	err := policy.RowError{Table: types.TableSongplays, Key: "k", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("RowError should unwrap to its cause")
	}
	if err.Error() != `songplays row "k" rejected: constraint` {
		t.Errorf("Error() = %q", err.Error())
	}
}
