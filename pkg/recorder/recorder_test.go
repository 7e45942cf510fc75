package recorder_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/recorder"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlite"
	testutils "github.com/papercomputeco/mnemo/pkg/utils/test"
)

var _ = Describe("Recorder", func() {
	var (
		ctx    context.Context
		driver *sqlite.Driver
		rec    *recorder.Recorder
		user   *storage.User
		msg    *storage.Message
		calls  atomic.Int32
		infer  recorder.InferFunc
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		driver, err = sqlite.NewDriver(ctx, filepath.Join(GinkgoT().TempDir(), "recorder.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(driver.Close)

		user, _, err = driver.InsertUser(ctx, testutils.NewTestUser("+15551230000"))
		Expect(err).NotTo(HaveOccurred())
		msg, _, err = driver.InsertMessage(ctx, testutils.NewTestMessage(user.ID, "SM1", "I parked on level 3"))
		Expect(err).NotTo(HaveOccurred())

		rec = recorder.New(recorder.Config{Store: driver})
		calls.Store(0)
		infer = func(_ context.Context, m *storage.Message) (*memory.Inference, error) {
			calls.Add(1)
			return &memory.Inference{Text: "Parked on level 3", ExternalID: "mem-1", Response: "Noted!"}, nil
		}
	})

	Describe("EnsureMemory", func() {
		It("records a memory with its interaction once", func() {
			turn, err := rec.EnsureMemory(ctx, msg.ID, user.ID, infer)
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.IsNew).To(BeTrue())
			Expect(turn.Memory.Content).To(Equal("Parked on level 3"))
			Expect(turn.Interaction.UserMessage).To(Equal("I parked on level 3"))
			Expect(turn.Interaction.BotResponse).To(Equal("Noted!"))

			again, err := rec.EnsureMemory(ctx, msg.ID, user.ID, infer)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.IsNew).To(BeFalse())
			Expect(again.Memory.ID).To(Equal(turn.Memory.ID))
			Expect(again.Interaction.BotResponse).To(Equal("Noted!"))
			Expect(calls.Load()).To(Equal(int32(1)))
		})

		It("does not infer again for a turn whose memory was deleted", func() {
			turn, err := rec.EnsureMemory(ctx, msg.ID, user.ID, infer)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.DeleteMemory(ctx, turn.Memory.ExternalID)).To(Succeed())

			pending, err := driver.ListPendingMessages(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())

			again, err := rec.EnsureMemory(ctx, msg.ID, user.ID, infer)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.IsNew).To(BeFalse())
			Expect(again.Memory).To(BeNil())
			Expect(again.Interaction.ID).To(Equal(turn.Interaction.ID))
			Expect(calls.Load()).To(Equal(int32(1)))

			stats, err := driver.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Memories).To(BeZero())
			Expect(stats.Interactions).To(Equal(1))
		})

		It("converges concurrent attempts on one memory and one interaction", func() {
			const n = 8
			var (
				wg    sync.WaitGroup
				fresh atomic.Int32
			)
			for range n {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					turn, err := rec.EnsureMemory(ctx, msg.ID, user.ID, infer)
					Expect(err).NotTo(HaveOccurred())
					if turn.IsNew {
						fresh.Add(1)
					}
				}()
			}
			wg.Wait()

			Expect(fresh.Load()).To(Equal(int32(1)))
			stats, err := driver.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Memories).To(Equal(1))
			Expect(stats.Interactions).To(Equal(1))
		})

		It("wraps backend failures as inference unavailable and leaves the message pending", func() {
			failing := func(context.Context, *storage.Message) (*memory.Inference, error) {
				return nil, errors.New("connection refused")
			}
			_, err := rec.EnsureMemory(ctx, msg.ID, user.ID, failing)
			Expect(err).To(MatchError(memory.ErrInferenceUnavailable))

			pending, err := driver.ListPendingMessages(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))

			_, err = driver.GetMessage(ctx, msg.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("substitutes a placeholder for media-only messages", func() {
			media := testutils.NewTestMessage(user.ID, "SM2", "")
			media.Kind = storage.KindImage
			media.NumMedia = 1
			stored, _, err := driver.InsertMessage(ctx, media)
			Expect(err).NotTo(HaveOccurred())

			turn, err := rec.EnsureMemory(ctx, stored.ID, user.ID, infer)
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Interaction.UserMessage).To(Equal(recorder.MediaOnlyBody))
		})

		It("refuses a message owned by another user", func() {
			_, err := rec.EnsureMemory(ctx, msg.ID, user.ID+100, infer)
			Expect(err).To(MatchError(recorder.ErrUserMismatch))
			Expect(calls.Load()).To(BeZero())
		})

		It("assigns an external id when the backend does not", func() {
			anonymous := func(context.Context, *storage.Message) (*memory.Inference, error) {
				return &memory.Inference{Text: "x"}, nil
			}
			turn, err := rec.EnsureMemory(ctx, msg.ID, user.ID, anonymous)
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Memory.ExternalID).NotTo(BeEmpty())
		})
	})

	Describe("CreateMemoryDirect", func() {
		var direct recorder.DirectInferFunc

		BeforeEach(func() {
			direct = func(context.Context) (*memory.Inference, error) {
				calls.Add(1)
				return &memory.Inference{Text: "Allergic to peanuts", ExternalID: "ext-direct"}, nil
			}
		})

		It("deduplicates on the request key without calling inference again", func() {
			mem, isNew, err := rec.CreateMemoryDirect(ctx, user.ID, "key-1", []byte(`{"source":"api"}`), direct)
			Expect(err).NotTo(HaveOccurred())
			Expect(isNew).To(BeTrue())
			Expect(mem.Kind).To(Equal(storage.MemoryDirect))
			Expect(string(mem.Metadata)).To(MatchJSON(`{"source":"api"}`))

			again, isNew, err := rec.CreateMemoryDirect(ctx, user.ID, "key-1", nil, direct)
			Expect(err).NotTo(HaveOccurred())
			Expect(isNew).To(BeFalse())
			Expect(again.ID).To(Equal(mem.ID))
			Expect(calls.Load()).To(Equal(int32(1)))
		})

		It("never deduplicates writes without a key", func() {
			_, _, err := rec.CreateMemoryDirect(ctx, user.ID, "", nil, direct)
			Expect(err).NotTo(HaveOccurred())
			_, isNew, err := rec.CreateMemoryDirect(ctx, user.ID, "", nil, direct)
			Expect(err).NotTo(HaveOccurred())
			Expect(isNew).To(BeTrue())
		})

		It("requires an inference function", func() {
			_, _, err := rec.CreateMemoryDirect(ctx, user.ID, "k", nil, nil)
			Expect(err).To(MatchError(memory.ErrNotConfigured))
		})
	})

	Describe("updates and reads", func() {
		It("updates, deletes and lists", func() {
			turn, err := rec.EnsureMemory(ctx, msg.ID, user.ID, infer)
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.UpdateMemory(ctx, turn.Memory.ExternalID, "Parked on level 4")).To(Succeed())
			got, err := driver.GetMemoryByMessage(ctx, msg.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("Parked on level 4"))

			recent, err := rec.RecentInteractions(ctx, user.ID, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(HaveLen(1))

			Expect(rec.DeleteMemory(ctx, turn.Memory.ExternalID)).To(Succeed())
			in, err := rec.Interaction(ctx, msg.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(in.MemoryID).To(BeNil())

			Expect(storage.IsNotFound(rec.DeleteMemory(ctx, "missing"))).To(BeTrue())
		})
	})
})
