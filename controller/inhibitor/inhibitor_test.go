package inhibitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInhibitUntilRelease(t *testing.T) {
	i := New()
	k := Key{Site: "eu-1", CheckUUID: "c1"}

	assert.False(t, i.Inhibited(k))
	i.Inhibit(k)
	assert.True(t, i.Inhibited(k))
	i.Release(k)
	assert.False(t, i.Inhibited(k))
}

func TestInhibitForExpires(t *testing.T) {
	i := New()
	k := Key{Site: "eu-1", CheckUUID: "c1"}

	i.InhibitFor(k, 20*time.Millisecond)
	assert.True(t, i.Inhibited(k))

	time.Sleep(30 * time.Millisecond)
	assert.False(t, i.Inhibited(k))
}

func TestKeysAreIndependent(t *testing.T) {
	i := New()
	i.Inhibit(Key{Site: "eu-1", CheckUUID: "c1"})

	assert.False(t, i.Inhibited(Key{Site: "us-1", CheckUUID: "c1"}))
	assert.False(t, i.Inhibited(Key{Site: "eu-1", CheckUUID: "c2"}))
}
