package feed

import (
	"bytes"
	"errors"
	"testing"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/identity"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

func TestEpochNormalization(t *testing.T) {
	e := MustNewEpoch(5, 3)

	if e.Start() != 0 || e.Level() != 3 {
		t.Errorf("Expected 0/3, got %s", e)
	}
	if !e.ContainsTime(5) {
		t.Error("Epoch 5/3 should contain 5")
	}
	if e.ContainsTime(12) {
		t.Error("Epoch 5/3 should not contain 12")
	}
	if e.ContainsTime(8) || !e.ContainsTime(7) || !e.ContainsTime(0) {
		t.Error("Epoch 0/3 is the half-open interval [0, 8)")
	}

	if _, err := NewEpoch(0, constants.EpochMaxLevel+1); !swarm.IsValidationError(err) {
		t.Errorf("Expected validation error for level 33, got %v", err)
	}
	if _, err := NewEpoch(MaxTime, 0); !swarm.IsValidationError(err) {
		t.Errorf("Expected validation error for start outside the tree, got %v", err)
	}
}

func TestEpochNavigation(t *testing.T) {
	e := MustNewEpoch(16, 3) // [16, 24)

	if !e.IsLeft() || e.IsRight() {
		t.Errorf("%s should be a left child", e)
	}

	right := e.Right()
	if right.Start() != 24 || right.Level() != 3 || !right.IsRight() {
		t.Errorf("Right of %s: got %s", e, right)
	}
	if right.Left() != e {
		t.Errorf("Left of %s: got %s", right, right.Left())
	}

	parent, err := e.Parent()
	if err != nil {
		t.Fatalf("Parent failed: %v", err)
	}
	if parent != MustNewEpoch(16, 4) {
		t.Errorf("Parent of %s: got %s", e, parent)
	}
	if p, _ := right.Parent(); p != parent {
		t.Errorf("Siblings have different parents: %s, %s", parent, p)
	}

	child, err := parent.ChildAt(27)
	if err != nil {
		t.Fatalf("ChildAt failed: %v", err)
	}
	if child != right {
		t.Errorf("ChildAt(27) of %s: got %s", parent, child)
	}
	if child, _ := parent.ChildAt(16); child != e {
		t.Errorf("ChildAt(16) of %s: got %s", parent, child)
	}

	if _, err := parent.ChildAt(40); !swarm.IsPreconditionError(err) {
		t.Errorf("Expected precondition error for time outside epoch, got %v", err)
	}
	if _, err := MustNewEpoch(3, 0).ChildAt(3); !errors.Is(err, ErrIndexExhausted) {
		t.Errorf("Expected ErrIndexExhausted at level 0, got %v", err)
	}
	if _, err := TopEpoch().Parent(); !errors.Is(err, ErrIndexExhausted) {
		t.Errorf("Expected ErrIndexExhausted above the top level, got %v", err)
	}

	// Edges of the tree have no further neighbours
	if TopEpoch().Left() != TopEpoch() {
		t.Error("First top level epoch has no left")
	}
	last := TopEpoch().Right()
	if last.End() != MaxTime || last.Right() != last {
		t.Errorf("Unexpected last top level epoch %s", last)
	}
}

func TestEpochNext(t *testing.T) {
	testCases := []struct {
		name  string
		epoch Epoch
		at    uint64
		want  Epoch
	}{
		{"leaves second 0", MustNewEpoch(0, 0), 1, MustNewEpoch(1, 0)},
		{"descends while contained", TopEpoch(), 1000, MustNewEpoch(0, 31)},
		{"descends into right half", MustNewEpoch(0, 4), 9, MustNewEpoch(8, 3)},
		{"lca then child", MustNewEpoch(8, 3), 20, MustNewEpoch(16, 4)},
		{"far jump", MustNewEpoch(1000, 0), 1 << 20, MustNewEpoch(1<<20, 20)},
		{"crossing top level epochs", MustNewEpoch(1<<32-2, 1), 1<<32 + 5, TopEpoch().Right()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.epoch.Next(tc.at)
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("%s.Next(%d) = %s, want %s", tc.epoch, tc.at, got, tc.want)
			}
			if !got.ContainsTime(tc.at) {
				t.Errorf("Next epoch %s does not contain %d", got, tc.at)
			}
		})
	}

	if _, err := MustNewEpoch(7, 0).Next(7); !errors.Is(err, ErrIndexExhausted) {
		t.Errorf("Expected ErrIndexExhausted for a second update in the same second, got %v", err)
	}
}

func TestLowestCommonAncestor(t *testing.T) {
	testCases := []struct {
		t0, t1 uint64
		want   Epoch
	}{
		{0, 1, MustNewEpoch(0, 1)},
		{5, 5, MustNewEpoch(5, 0)},
		{8, 15, MustNewEpoch(8, 3)},
		{7, 8, MustNewEpoch(0, 4)},
		{1000, 1 << 20, MustNewEpoch(0, 21)},
	}

	for _, tc := range testCases {
		got := LowestCommonAncestor(tc.t0, tc.t1)
		if got != tc.want {
			t.Errorf("LCA(%d, %d) = %s, want %s", tc.t0, tc.t1, got, tc.want)
		}
		if !got.ContainsTime(tc.t0) || !got.ContainsTime(tc.t1) {
			t.Errorf("LCA(%d, %d) = %s does not contain both", tc.t0, tc.t1, got)
		}
	}
}

func TestIndexBinary(t *testing.T) {
	seq, err := Sequence(0x0102).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	if !bytes.Equal(seq, []byte{0, 0, 0, 0, 0, 0, 0x01, 0x02}) {
		t.Errorf("Sequence binary is not 8-byte big-endian: %x", seq)
	}

	epoch, err := MustNewEpoch(1024, 10).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	want := identity.Keccak256([]byte{0, 0, 0, 0, 0, 0, 0x04, 0x00, 10})
	if !bytes.Equal(epoch, want[:]) {
		t.Errorf("Epoch binary mismatch: got %x, want %x", epoch, want)
	}

	other, _ := MustNewEpoch(1024, 9).MarshalBinary()
	if bytes.Equal(epoch, other) {
		t.Error("Level must contribute to the epoch binary")
	}
}

func TestNextDispatch(t *testing.T) {
	next, err := Next(Sequence(41), 12345)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if next != Sequence(42) {
		t.Errorf("Expected sequence 42, got %s", next)
	}

	next, err = Next(MustNewEpoch(0, 0), 1)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if next != MustNewEpoch(1, 0) {
		t.Errorf("Expected epoch 1/0, got %s", next)
	}
}

func TestIdentifier(t *testing.T) {
	topic := TopicFromString("my feed")

	id, err := Identifier(topic, Sequence(3))
	if err != nil {
		t.Fatalf("Identifier failed: %v", err)
	}
	seq, _ := Sequence(3).MarshalBinary()
	if id != identity.Keccak256(topic[:], seq) {
		t.Error("Identifier is not Keccak(topic ‖ index)")
	}

	other, _ := Identifier(TopicFromString("other feed"), Sequence(3))
	if id == other {
		t.Error("Different topics produced the same identifier")
	}
}

func TestTopic(t *testing.T) {
	// "é" precomposed and as e + combining acute accent
	composed := TopicFromString("caf\u00e9")
	decomposed := TopicFromString("cafe\u0301")
	if composed != decomposed {
		t.Error("Canonically equivalent names produced different topics")
	}

	parsed, err := ParseHexTopic("0x" + composed.String())
	if err != nil {
		t.Fatalf("ParseHexTopic failed: %v", err)
	}
	if parsed != composed {
		t.Error("Hex round trip changed the topic")
	}

	if _, err := NewTopic(make([]byte, 31)); !swarm.IsValidationError(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if _, err := ParseHexTopic("zz"); !swarm.IsValidationError(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}
