package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/call-screen/internal/calllog"
	"github.com/rcliao/call-screen/internal/model"
)

func waitFor(t *testing.T, p *Presenter, cond func(State) bool) State {
	t.Helper()
	require.Eventually(t, func() bool { return cond(p.Current()) }, 2*time.Second, 5*time.Millisecond)
	return p.Current()
}

func TestPresenterStartsLoading(t *testing.T) {
	p := NewPresenter(StaticPermission(true))
	assert.Equal(t, Loading, p.Current().Kind)
}

func TestPresenterReadyFollowsStream(t *testing.T) {
	stream := calllog.NewStream(nil)
	defer stream.Close()

	p := NewPresenter(StaticPermission(true))
	p.Attach(stream)
	defer p.Close()

	st := waitFor(t, p, func(s State) bool { return s.Kind == Ready })
	assert.Empty(t, st.Calls)
	assert.True(t, st.PermissionGranted)

	stream.Append(model.CallLogEntry{ID: "a"})
	stream.Append(model.CallLogEntry{ID: "b"})

	st = waitFor(t, p, func(s State) bool { return len(s.Calls) == 2 })
	assert.Equal(t, "b", st.Calls[0].ID)
}

func TestPresenterSetPermission(t *testing.T) {
	stream := calllog.NewStream(nil)
	defer stream.Close()

	p := NewPresenter(StaticPermission(false))
	p.Attach(stream)
	defer p.Close()

	waitFor(t, p, func(s State) bool { return s.Kind == Ready })
	assert.False(t, p.Current().PermissionGranted)

	p.SetPermission(true)
	assert.True(t, p.Current().PermissionGranted)

	// The granted flag survives later log updates.
	stream.Append(model.CallLogEntry{ID: "a"})
	st := waitFor(t, p, func(s State) bool { return len(s.Calls) == 1 })
	assert.True(t, st.PermissionGranted)
}

func TestPresenterFailIsTerminal(t *testing.T) {
	stream := calllog.NewStream(nil)
	defer stream.Close()

	p := NewPresenter(nil)
	p.Fail("store cannot be created")
	p.Attach(stream)
	defer p.Close()

	stream.Append(model.CallLogEntry{ID: "a"})
	time.Sleep(20 * time.Millisecond)

	st := p.Current()
	assert.Equal(t, Failed, st.Kind)
	assert.Equal(t, "store cannot be created", st.Message)
	assert.Empty(t, st.Calls)
}
