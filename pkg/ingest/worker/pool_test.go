package worker

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/eventstream"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/recorder"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/mnemo/pkg/utils/test"
)

// newTestPool creates a worker pool backed by an in-memory driver.
// Callers should "wp.Close()" to drain enqueued jobs before asserting storage state.
func newTestPool(driver *inmemory.Driver, inferer *testutils.MockInferer, pub *testutils.MockPublisher) *Pool {
	wp, err := NewPool(&Config{
		Recorder:    recorder.New(recorder.Config{Store: driver}),
		Inferer:     inferer,
		Media:       driver,
		Publisher:   pub,
		Retry:       storage.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Messages:    driver,
		MaxAttempts: 2,
	})
	Expect(err).NotTo(HaveOccurred())
	return wp
}

var _ = Describe("Worker Pool", func() {
	var (
		ctx     context.Context
		driver  *inmemory.Driver
		inferer *testutils.MockInferer
		pub     *testutils.MockPublisher
		user    *storage.User
		msg     *storage.Message
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		inferer = testutils.NewMockInferer()
		pub = testutils.NewMockPublisher()

		var err error
		user, _, err = driver.InsertUser(ctx, testutils.NewTestUser("+15551230000"))
		Expect(err).NotTo(HaveOccurred())
		msg, _, err = driver.InsertMessage(ctx, testutils.NewTestMessage(user.ID, "SM1", "remember the milk"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a recorder and an inferer", func() {
		_, err := NewPool(&Config{Inferer: inferer})
		Expect(err).To(HaveOccurred())
		_, err = NewPool(&Config{Recorder: recorder.New(recorder.Config{Store: driver})})
		Expect(err).To(HaveOccurred())
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			wp := newTestPool(driver, inferer, pub)
			Expect(wp.Enqueue(Job{MessageID: msg.ID, UserID: user.ID})).To(BeTrue())
			wp.Close()
		})

		It("refuses jobs after close", func() {
			wp := newTestPool(driver, inferer, pub)
			wp.Close()
			Expect(wp.Enqueue(Job{MessageID: msg.ID, UserID: user.ID})).To(BeFalse())
			wp.Close()
		})
	})

	It("records the memory and publishes an event", func() {
		wp := newTestPool(driver, inferer, pub)
		wp.Enqueue(Job{MessageID: msg.ID, UserID: user.ID, ProviderMessageID: "SM1"})
		wp.Close()

		mem, err := driver.GetMemoryByMessage(ctx, msg.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(mem.Content).To(Equal("remember the milk"))

		events := pub.EventsOfType(eventstream.EventTypeMemoryRecorded)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Memory.MemoryID).To(Equal(mem.ID))
	})

	It("does not call inference again for a message that already has a memory", func() {
		wp := newTestPool(driver, inferer, pub)
		wp.Enqueue(Job{MessageID: msg.ID, UserID: user.ID})
		Eventually(inferer.Calls).Should(Equal(1))
		Eventually(func() error {
			_, err := driver.GetMemoryByMessage(ctx, msg.ID)
			return err
		}).Should(Succeed())

		wp.Enqueue(Job{MessageID: msg.ID, UserID: user.ID})
		wp.Close()

		Expect(inferer.Calls()).To(Equal(1))
		Expect(pub.EventsOfType(eventstream.EventTypeMemoryRecorded)).To(HaveLen(1))
	})

	It("retries an inference outage and leaves the message pending when it persists", func() {
		inferer.SetFail(true)
		wp := newTestPool(driver, inferer, pub)
		wp.Enqueue(Job{MessageID: msg.ID, UserID: user.ID})
		wp.Close()

		Expect(inferer.Calls()).To(Equal(3))
		pending, err := driver.ListPendingMessages(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(HaveLen(1))
		Expect(pub.Events()).To(BeEmpty())
	})

	It("counts failed jobs and gives up on the message after the last attempt", func() {
		inferer.SetFail(true)
		wp := newTestPool(driver, inferer, pub)
		wp.Enqueue(Job{MessageID: msg.ID, UserID: user.ID})
		Eventually(func() string {
			got, err := driver.GetMessage(ctx, msg.ID)
			Expect(err).NotTo(HaveOccurred())
			return got.Status
		}).Should(Equal(storage.RetryStatus(1)))

		pending, err := driver.ListPendingMessages(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(HaveLen(1))

		wp.Enqueue(Job{MessageID: msg.ID, UserID: user.ID, Attempts: storage.MemoryAttempts(pending[0].Status)})
		wp.Close()

		got, err := driver.GetMessage(ctx, msg.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(storage.StatusMemoryFailed))
		pending, err = driver.ListPendingMessages(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("does not count a missing inference backend against the message", func() {
		inferer.Err = memory.ErrNotConfigured
		wp := newTestPool(driver, inferer, pub)
		wp.Enqueue(Job{MessageID: msg.ID, UserID: user.ID, Attempts: 1})
		wp.Close()

		Expect(inferer.Calls()).To(Equal(1))
		got, err := driver.GetMessage(ctx, msg.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(storage.StatusReceived))
	})

	It("leaves a turn whose memory was deleted alone", func() {
		wp := newTestPool(driver, inferer, pub)
		wp.Enqueue(Job{MessageID: msg.ID, UserID: user.ID})
		Eventually(func() error {
			_, err := driver.GetMemoryByMessage(ctx, msg.ID)
			return err
		}).Should(Succeed())
		mem, err := driver.GetMemoryByMessage(ctx, msg.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.DeleteMemory(ctx, mem.ExternalID)).To(Succeed())

		wp.Enqueue(Job{MessageID: msg.ID, UserID: user.ID})
		wp.Close()

		Expect(inferer.Calls()).To(Equal(1))
		_, err = driver.GetMemoryByMessage(ctx, msg.ID)
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("passes media context to inference", func() {
		photo := testutils.NewTestMessage(user.ID, "SM2", "look")
		photo.NumMedia = 1
		stored, _, err := driver.InsertMessage(ctx, photo)
		Expect(err).NotTo(HaveOccurred())
		file, _, err := driver.InsertMedia(ctx, testutils.NewTestMedia("pic"))
		Expect(err).NotTo(HaveOccurred())
		_, err = driver.LinkMedia(ctx, &storage.MessageMedia{MessageID: stored.ID, MediaID: file.ID})
		Expect(err).NotTo(HaveOccurred())

		wp := newTestPool(driver, inferer, pub)
		wp.Enqueue(Job{MessageID: stored.ID, UserID: user.ID})
		wp.Close()

		Expect(inferer.Requests).To(HaveLen(1))
		Expect(inferer.Requests[0].MediaContext).To(HaveLen(1))
		Expect(inferer.Requests[0].MediaContext[0].Hash).To(Equal(file.ContentHash))
	})
})
