package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sizeDetail struct {
	Height int `json:"height"`
}

func TestBusSubscribeAndUnsubscribe(t *testing.T) {
	b := NewBus[sizeDetail]("resize")
	var got []int
	sub := b.Subscribe(func(e Event[sizeDetail]) { got = append(got, e.Detail.Height) })

	assert.Equal(t, 1, b.Publish(&sizeDetail{Height: 10}))
	assert.Equal(t, 1, b.Publish(&sizeDetail{Height: 20}))

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, b.Publish(&sizeDetail{Height: 30}))
	assert.Equal(t, []int{10, 20}, got)
}


func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	b := NewBus[sizeDetail]("resize")
	var order []string
	b.Subscribe(func(Event[sizeDetail]) { order = append(order, "first") })
	b.Subscribe(func(Event[sizeDetail]) { order = append(order, "second") })

	b.Publish(nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestTargetDispatchJSON(t *testing.T) {
	target := NewTarget()
	var events []Event[sizeDetail]
	_, err := On(target, "amp-widgetCreated", func(e Event[sizeDetail]) { events = append(events, e) })
	require.NoError(t, err)

	n, err := target.Dispatch("amp-widgetCreated", []byte(`{"height":250}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = target.Dispatch("amp-widgetCreated", []byte(`null`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, events, 2)
	assert.Equal(t, "amp-widgetCreated", events[0].Name)
	assert.Equal(t, 250, events[0].Detail.Height)
	assert.Nil(t, events[1].Detail)
}

func TestTargetDispatchWithoutListeners(t *testing.T) {
	n, err := NewTarget().Dispatch("nobody", []byte(`{}`))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTargetDispatchBadJSON(t *testing.T) {
	target := NewTarget()
	_, err := On(target, "e", func(Event[sizeDetail]) {})
	require.NoError(t, err)

	_, err = target.Dispatch("e", []byte(`{"height":"tall"}`))
	assert.Error(t, err)
}

func TestTargetTypeMismatch(t *testing.T) {
	target := NewTarget()
	_, err := On(target, "e", func(Event[sizeDetail]) {})
	require.NoError(t, err)

	_, err = On(target, "e", func(Event[string]) {})
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	assert.Equal(t, 1, target.Listeners("e"))
}
