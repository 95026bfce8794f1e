package spi

import (
	"testing"

	"go.viam.com/test"
)

func TestResetReleasesSegments(t *testing.T) {
	h := &Handle{pending: make([]Segment, 0, MaxSegments)}
	h.Enqueue(Segment("AB"))
	h.Enqueue(Segment("CDE"))

	h.Reset()
	test.That(t, h.Pending(), test.ShouldEqual, 0)
	backing := h.pending[:2]
	test.That(t, backing[0], test.ShouldBeNil)
	test.That(t, backing[1], test.ShouldBeNil)
}
