package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/storage"
)

// DriverFactory opens a fresh, empty driver whose timestamps come from now.
type DriverFactory func(now func() time.Time) storage.Driver

// DescribeDriver registers the storage.Driver behavioral specs shared by
// every backend.
func DescribeDriver(name string, factory DriverFactory) bool {
	return Describe(name+" driver conformance", func() {
		var (
			ctx    context.Context
			clock  *Clock
			driver storage.Driver
			user   *storage.User
		)

		BeforeEach(func() {
			ctx = context.Background()
			clock = NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
			driver = factory(clock.Now)

			var err error
			user, _, err = driver.InsertUser(ctx, NewTestUser("+15551230000"))
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		insertTurn := func(msg *storage.Message, content string) (*storage.Memory, *storage.Interaction, bool) {
			mem, in, isNew, err := driver.InsertTurn(ctx,
				&storage.Memory{UserID: user.ID, SourceMessageID: storage.Int64Ptr(msg.ID), ExternalID: "ext-" + msg.ProviderMessageID, Content: content},
				&storage.Interaction{UserID: user.ID, UserMessage: msg.Body, BotResponse: "noted", Sources: []string{"a"}},
			)
			Expect(err).NotTo(HaveOccurred())
			return mem, in, isNew
		}

		Describe("users", func() {
			It("returns the existing user without touching its timezone", func() {
				again, isNew, err := driver.InsertUser(ctx, &storage.User{
					ExternalID:  user.ExternalID,
					PhoneNumber: user.PhoneNumber,
					Timezone:    "Asia/Kolkata",
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeFalse())
				Expect(again.ID).To(Equal(user.ID))
				Expect(again.Timezone).To(Equal("UTC"))
			})

			It("defaults an empty timezone to UTC", func() {
				u, isNew, err := driver.InsertUser(ctx, &storage.User{ExternalID: "whatsapp:+15550000001", PhoneNumber: "+15550000001"})
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeTrue())
				Expect(u.Timezone).To(Equal("UTC"))
				Expect(u.Active).To(BeTrue())
			})

			It("changes the timezone only through SetUserTimezone", func() {
				Expect(driver.SetUserTimezone(ctx, user.ID, "Europe/Berlin")).To(Succeed())
				got, err := driver.GetUserByPhone(ctx, user.PhoneNumber)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Timezone).To(Equal("Europe/Berlin"))
			})

			It("rejects a phone number owned by another external id", func() {
				_, _, err := driver.InsertUser(ctx, &storage.User{ExternalID: "other", PhoneNumber: user.PhoneNumber})
				Expect(err).To(MatchError(storage.ErrConstraint))
			})

			It("reports unknown users as not found", func() {
				_, err := driver.GetUserByExternalID(ctx, "nobody")
				Expect(storage.IsNotFound(err)).To(BeTrue())
				Expect(storage.IsNotFound(driver.SetUserTimezone(ctx, 9999, "UTC"))).To(BeTrue())
			})

			It("creates exactly one user under concurrent first contact", func() {
				const n = 8
				var (
					wg    sync.WaitGroup
					mu    sync.Mutex
					ids   = map[int64]bool{}
					fresh int
				)
				for range n {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						u, isNew, err := driver.InsertUser(ctx, NewTestUser("+15557778888"))
						Expect(err).NotTo(HaveOccurred())
						mu.Lock()
						ids[u.ID] = true
						if isNew {
							fresh++
						}
						mu.Unlock()
					}()
				}
				wg.Wait()
				Expect(ids).To(HaveLen(1))
				Expect(fresh).To(Equal(1))
			})
		})

		Describe("messages", func() {
			It("keeps the first body when a provider id is replayed with different content", func() {
				first, isNew, err := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SM1", "original"))
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeTrue())
				Expect(first.Status).To(Equal(storage.StatusReceived))

				replay, isNew, err := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SM1", "mutated"))
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeFalse())
				Expect(replay.ID).To(Equal(first.ID))
				Expect(replay.Body).To(Equal("original"))
			})

			It("stores one row under concurrent deliveries", func() {
				const n = 10
				var (
					wg    sync.WaitGroup
					mu    sync.Mutex
					ids   = map[int64]bool{}
					fresh int
				)
				for i := range n {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						m, isNew, err := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SMCONC", fmt.Sprintf("body %d", i)))
						Expect(err).NotTo(HaveOccurred())
						mu.Lock()
						ids[m.ID] = true
						if isNew {
							fresh++
						}
						mu.Unlock()
					}()
				}
				wg.Wait()

				Expect(ids).To(HaveLen(1))
				Expect(fresh).To(Equal(1))
				stats, err := driver.Stats(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(stats.Messages).To(Equal(1))
			})

			It("rejects a message for an unknown user as a constraint violation", func() {
				_, _, err := driver.InsertMessage(ctx, NewTestMessage(424242, "SMORPHAN", "hi"))
				Expect(err).To(MatchError(storage.ErrConstraint))
				Expect(storage.IsTransient(err)).To(BeFalse())
			})

			It("updates only the status", func() {
				m, _, err := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SM2", "hello"))
				Expect(err).NotTo(HaveOccurred())
				Expect(driver.SetMessageStatus(ctx, m.ID, "processed")).To(Succeed())

				got, err := driver.GetMessageByProviderID(ctx, "SM2")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Status).To(Equal("processed"))
				Expect(got.Body).To(Equal("hello"))
			})

			It("lists unrecorded messages, least recently touched first", func() {
				a, _, _ := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SMA", "a"))
				clock.Advance(time.Second)
				b, _, _ := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SMB", "b"))
				clock.Advance(time.Second)
				c, _, _ := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SMC", "c"))
				insertTurn(b, "b")

				pending, err := driver.ListPendingMessages(ctx, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(pending).To(HaveLen(2))
				Expect(pending[0].ID).To(Equal(a.ID))
				Expect(pending[1].ID).To(Equal(c.ID))

				pending, err = driver.ListPendingMessages(ctx, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(pending).To(HaveLen(1))

				clock.Advance(time.Second)
				Expect(driver.SetMessageStatus(ctx, a.ID, storage.RetryStatus(1))).To(Succeed())
				pending, err = driver.ListPendingMessages(ctx, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(pending).To(HaveLen(2))
				Expect(pending[0].ID).To(Equal(c.ID))
				Expect(pending[1].ID).To(Equal(a.ID))
				Expect(storage.MemoryAttempts(pending[1].Status)).To(Equal(1))
			})

			It("does not list messages whose memory attempts are exhausted", func() {
				a, _, _ := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SMX", "x"))
				Expect(driver.SetMessageStatus(ctx, a.ID, storage.StatusMemoryFailed)).To(Succeed())

				pending, err := driver.ListPendingMessages(ctx, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(pending).To(BeEmpty())
			})

			It("does not list a message again once its memory is deleted", func() {
				msg, _, _ := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SMD", "d"))
				mem, first, isNew := insertTurn(msg, "d")
				Expect(isNew).To(BeTrue())
				Expect(driver.DeleteMemory(ctx, mem.ExternalID)).To(Succeed())

				pending, err := driver.ListPendingMessages(ctx, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(pending).To(BeEmpty())

				again, in, isNew := insertTurn(msg, "d again")
				Expect(isNew).To(BeFalse())
				Expect(again).To(BeNil())
				Expect(in.ID).To(Equal(first.ID))
				Expect(in.MemoryID).To(BeNil())

				_, err = driver.GetMemoryByMessage(ctx, msg.ID)
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})
		})

		Describe("media", func() {
			It("counts reuse of the same content", func() {
				first, isNew, err := driver.InsertMedia(ctx, NewTestMedia("cat"))
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeTrue())
				Expect(first.ReuseCount).To(BeZero())

				again, isNew, err := driver.InsertMedia(ctx, NewTestMedia("cat"))
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeFalse())
				Expect(again.ID).To(Equal(first.ID))
				Expect(again.ReuseCount).To(Equal(int64(1)))
				Expect(again.References()).To(Equal(int64(2)))
			})

			It("counts every concurrent duplicate exactly once", func() {
				const n = 6
				var wg sync.WaitGroup
				for range n {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						_, _, err := driver.InsertMedia(ctx, NewTestMedia("dog"))
						Expect(err).NotTo(HaveOccurred())
					}()
				}
				wg.Wait()

				got, err := driver.GetMediaByHash(ctx, TestHash("dog"))
				Expect(err).NotTo(HaveOccurred())
				Expect(got.References()).To(Equal(int64(n)))
			})

			It("links a pair once no matter how often it is linked", func() {
				msg, _, _ := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SMM", ""))
				file, _, _ := driver.InsertMedia(ctx, NewTestMedia("bird"))

				linked, err := driver.LinkMedia(ctx, &storage.MessageMedia{MessageID: msg.ID, MediaID: file.ID})
				Expect(err).NotTo(HaveOccurred())
				Expect(linked).To(BeTrue())
				for range 3 {
					linked, err = driver.LinkMedia(ctx, &storage.MessageMedia{MessageID: msg.ID, MediaID: file.ID})
					Expect(err).NotTo(HaveOccurred())
					Expect(linked).To(BeFalse())
				}

				files, err := driver.ListMessageMedia(ctx, msg.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(files).To(HaveLen(1))
				Expect(files[0].ID).To(Equal(file.ID))
			})

			It("records the upload location", func() {
				file, _, _ := driver.InsertMedia(ctx, NewTestMedia("fish"))
				Expect(file.Stored()).To(BeFalse())
				Expect(driver.SetMediaLocation(ctx, file.ID, "media/ab/key.jpg", "file:///tmp/key.jpg")).To(Succeed())

				got, err := driver.GetMedia(ctx, file.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Stored()).To(BeTrue())
				Expect(got.StorageURL).To(Equal("file:///tmp/key.jpg"))
			})
		})

		Describe("turns", func() {
			It("stores memory and interaction together and replays idempotently", func() {
				msg, _, _ := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SMT", "buy milk"))

				mem, in, isNew := insertTurn(msg, "buy milk")
				Expect(isNew).To(BeTrue())
				Expect(mem.Kind).To(Equal(storage.MemoryConversation))
				Expect(*in.MemoryID).To(Equal(mem.ID))
				Expect(in.Sources).To(Equal([]string{"a"}))

				again, againIn, isNew := insertTurn(msg, "different")
				Expect(isNew).To(BeFalse())
				Expect(again.ID).To(Equal(mem.ID))
				Expect(again.Content).To(Equal("buy milk"))
				Expect(againIn.ID).To(Equal(in.ID))
			})

			It("creates one memory and one interaction under concurrency", func() {
				msg, _, _ := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SMTC", "race"))

				const n = 6
				var (
					wg    sync.WaitGroup
					mu    sync.Mutex
					fresh int
				)
				for range n {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						_, _, isNew := insertTurn(msg, "race")
						if isNew {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}()
				}
				wg.Wait()

				Expect(fresh).To(Equal(1))
				stats, err := driver.Stats(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(stats.Memories).To(Equal(1))
				Expect(stats.Interactions).To(Equal(1))
			})

			It("deduplicates direct memories on the request key", func() {
				mem := &storage.Memory{UserID: user.ID, RequestKey: "req-1", ExternalID: "ext-1", Content: "remember this"}
				first, isNew, err := driver.InsertDirectMemory(ctx, mem)
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeTrue())
				Expect(first.Kind).To(Equal(storage.MemoryDirect))
				Expect(first.SourceMessageID).To(BeNil())

				again, isNew, err := driver.InsertDirectMemory(ctx, mem)
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeFalse())
				Expect(again.ID).To(Equal(first.ID))

				byKey, err := driver.GetMemoryByRequestKey(ctx, "req-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(byKey.ID).To(Equal(first.ID))
				_, err = driver.GetMemoryByRequestKey(ctx, "req-2")
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("updates and deletes by external id, keeping the interaction", func() {
				msg, _, _ := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SMU", "v1"))
				mem, _, _ := insertTurn(msg, "v1")

				Expect(driver.UpdateMemoryContent(ctx, mem.ExternalID, "v2")).To(Succeed())
				got, err := driver.GetMemoryByExternalID(ctx, mem.ExternalID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Content).To(Equal("v2"))

				Expect(driver.DeleteMemory(ctx, mem.ExternalID)).To(Succeed())
				_, err = driver.GetMemoryByMessage(ctx, msg.ID)
				Expect(storage.IsNotFound(err)).To(BeTrue())

				in, err := driver.GetInteractionByMessage(ctx, msg.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(in.MemoryID).To(BeNil())

				Expect(storage.IsNotFound(driver.DeleteMemory(ctx, mem.ExternalID))).To(BeTrue())
				Expect(storage.IsNotFound(driver.UpdateMemoryContent(ctx, "missing", "x"))).To(BeTrue())
			})
		})

		Describe("search", func() {
			It("filters on a half-open window and content, newest first", func() {
				start := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
				end := start.Add(24 * time.Hour)

				at := func(t time.Time, sid, content string) {
					clock.Set(t)
					msg, _, err := driver.InsertMessage(ctx, NewTestMessage(user.ID, sid, content))
					Expect(err).NotTo(HaveOccurred())
					insertTurn(msg, content)
				}
				at(start.Add(-time.Microsecond), "S0", "before window milk")
				at(start, "S1", "exactly at start milk")
				at(start.Add(6*time.Hour), "S2", "Buy MILK later")
				at(start.Add(7*time.Hour), "S3", "walk the dog")
				at(end, "S4", "exactly at end milk")

				found, err := driver.SearchMemories(ctx, storage.MemoryQuery{UserID: user.ID, Start: start, End: end})
				Expect(err).NotTo(HaveOccurred())
				Expect(found).To(HaveLen(3))
				Expect(found[0].Content).To(Equal("walk the dog"))
				Expect(found[2].Content).To(Equal("exactly at start milk"))

				found, err = driver.SearchMemories(ctx, storage.MemoryQuery{UserID: user.ID, Start: start, End: end, Text: "milk"})
				Expect(err).NotTo(HaveOccurred())
				Expect(found).To(HaveLen(2))

				found, err = driver.SearchMemories(ctx, storage.MemoryQuery{UserID: user.ID, Limit: 2})
				Expect(err).NotTo(HaveOccurred())
				Expect(found).To(HaveLen(2))
				Expect(found[0].Content).To(Equal("exactly at end milk"))
			})

			It("lists recent interactions newest first", func() {
				for i := range 3 {
					clock.Advance(time.Minute)
					msg, _, _ := driver.InsertMessage(ctx, NewTestMessage(user.ID, fmt.Sprintf("SI%d", i), fmt.Sprintf("m%d", i)))
					insertTurn(msg, msg.Body)
				}
				recent, err := driver.ListInteractions(ctx, user.ID, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(recent).To(HaveLen(2))
				Expect(recent[0].UserMessage).To(Equal("m2"))
				Expect(recent[1].UserMessage).To(Equal("m1"))
			})
		})

		Describe("cascades", func() {
			It("removes a message's memory, interaction and links but keeps media", func() {
				msg, _, _ := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SMD", "with photo"))
				file, _, _ := driver.InsertMedia(ctx, NewTestMedia("shared"))
				_, err := driver.LinkMedia(ctx, &storage.MessageMedia{MessageID: msg.ID, MediaID: file.ID})
				Expect(err).NotTo(HaveOccurred())
				insertTurn(msg, "with photo")

				Expect(driver.DeleteMessage(ctx, msg.ID)).To(Succeed())

				stats, err := driver.Stats(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(stats.Messages).To(BeZero())
				Expect(stats.Memories).To(BeZero())
				Expect(stats.Interactions).To(BeZero())
				Expect(stats.MediaLinks).To(BeZero())
				Expect(stats.MediaFiles).To(Equal(1))
			})

			It("removes everything a user owns", func() {
				msg, _, _ := driver.InsertMessage(ctx, NewTestMessage(user.ID, "SMX", "x"))
				insertTurn(msg, "x")
				_, _, err := driver.InsertDirectMemory(ctx, &storage.Memory{UserID: user.ID, RequestKey: "k", ExternalID: "e", Content: "y"})
				Expect(err).NotTo(HaveOccurred())

				Expect(driver.DeleteUser(ctx, user.ID)).To(Succeed())

				stats, err := driver.Stats(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(*stats).To(Equal(storage.Stats{}))
			})
		})
	})
}
