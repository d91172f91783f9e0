package memory_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/engramdb/engram/pkg/errors"
	. "github.com/engramdb/engram/pkg/memory"
	"github.com/engramdb/engram/pkg/stores"
)

func TestBus(t *testing.T) {
	Convey("Given a bus over an empty backend", t, func() {
		backend := stores.NewInMemoryBackend()
		bus := NewBus(backend)
		ctx := context.Background()

		Convey("When a message is sent", func() {
			msg, err := bus.Send(ctx, "agent-1", "agent-2", "take over the deploy", map[string]string{"task": "deploy"})

			So(err, ShouldBeNil)
			So(msg.ID, ShouldNotBeEmpty)
			So(msg.Read(), ShouldBeFalse)

			Convey("The recipient sees it, the sender does not", func() {
				got, err := bus.Get(ctx, "agent-2", false)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].Content, ShouldEqual, "take over the deploy")
				So(got[0].Metadata["task"], ShouldEqual, "deploy")

				got, err = bus.Get(ctx, "agent-1", false)
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
			})

			Convey("It stays visible until someone marks it read", func() {
				first, _ := bus.Get(ctx, "agent-2", false)
				second, _ := bus.Get(ctx, "agent-2", false)
				So(first, ShouldHaveLength, 1)
				So(second, ShouldHaveLength, 1)

				So(bus.MarkRead(ctx, msg.ID, "agent-2"), ShouldBeNil)

				got, err := bus.Get(ctx, "agent-2", false)
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
			})

			Convey("Marking it read twice keeps the first reader", func() {
				So(bus.MarkRead(ctx, msg.ID, "agent-2"), ShouldBeNil)
				So(bus.MarkRead(ctx, msg.ID, "agent-3"), ShouldBeNil)

				got, err := bus.Get(ctx, "agent-2", true)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
				So(got[0].Read(), ShouldBeTrue)
				So(got[0].ReadBy, ShouldEqual, "agent-2")
			})

			Convey("include_read returns it after the read transition", func() {
				So(bus.MarkRead(ctx, msg.ID, "agent-2"), ShouldBeNil)

				unread, _ := bus.Get(ctx, "agent-2", false)
				all, _ := bus.Get(ctx, "agent-2", true)
				So(unread, ShouldBeEmpty)
				So(all, ShouldHaveLength, 1)
			})
		})

		Convey("When a broadcast is sent", func() {
			_, err := bus.Send(ctx, "agent-1", BroadcastInstance, "maintenance window at noon", nil)
			So(err, ShouldBeNil)

			Convey("Every instance receives it", func() {
				for _, instance := range []string{"agent-2", "agent-3", "never-seen-before"} {
					got, err := bus.Get(ctx, instance, false)
					So(err, ShouldBeNil)
					So(got, ShouldHaveLength, 1)
				}
			})
		})

		Convey("When several messages are pending", func() {
			base := time.Now().UTC()
			for i, content := range []string{"first", "second", "third"} {
				msg := &HandoffMessage{
					ID:           content,
					FromInstance: "agent-1",
					ToInstance:   "agent-2",
					Content:      content,
					CreatedAt:    base.Add(time.Duration(i) * time.Second),
				}
				So(backend.PutMessage(ctx, msg), ShouldBeNil)
			}

			Convey("They arrive oldest first", func() {
				got, err := bus.Get(ctx, "agent-2", false)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 3)
				So(got[0].Content, ShouldEqual, "first")
				So(got[2].Content, ShouldEqual, "third")
			})
		})

		Convey("Malformed identifiers are rejected before anything is stored", func() {
			_, err := bus.Send(ctx, "Not Valid", "agent-2", "x", nil)
			So(errors.IsKind(err, errors.KindValidation), ShouldBeTrue)

			_, err = bus.Send(ctx, BroadcastInstance, "agent-2", "x", nil)
			So(errors.IsKind(err, errors.KindValidation), ShouldBeTrue)

			_, err = bus.Send(ctx, "agent-1", "agent-2", "", nil)
			So(errors.IsKind(err, errors.KindValidation), ShouldBeTrue)

			_, err = bus.Get(ctx, "Not Valid", false)
			So(errors.IsKind(err, errors.KindValidation), ShouldBeTrue)

			err = bus.MarkRead(ctx, "some-id", "Not Valid")
			So(errors.IsKind(err, errors.KindValidation), ShouldBeTrue)
		})

		Convey("Marking an unknown message read is a not-found error", func() {
			err := bus.MarkRead(ctx, "ghost", "agent-2")
			So(errors.IsKind(err, errors.KindNotFound), ShouldBeTrue)
		})
	})
}
