package ledger_test

import (
	"context"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/ledger"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlite"
	testutils "github.com/papercomputeco/mnemo/pkg/utils/test"
)

var _ = Describe("Ledger", func() {
	var (
		ctx    context.Context
		driver *sqlite.Driver
		l      *ledger.Ledger
		user   *storage.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		driver, err = sqlite.NewDriver(ctx, filepath.Join(GinkgoT().TempDir(), "ledger.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(driver.Close)

		user, _, err = driver.InsertUser(ctx, testutils.NewTestUser("+15551230000"))
		Expect(err).NotTo(HaveOccurred())
		l = ledger.New(ledger.Config{Messages: driver})
	})

	It("requires a provider id", func() {
		_, _, err := l.RecordMessage(ctx, "  ", ledger.Fields{UserID: user.ID})
		Expect(err).To(MatchError(ledger.ErrMissingProviderID))
	})

	It("rejects unknown kinds", func() {
		_, _, err := l.RecordMessage(ctx, "SM1", ledger.Fields{UserID: user.ID, Kind: "sticker"})
		Expect(err).To(MatchError(ledger.ErrInvalidKind))
	})

	It("keeps the first body when a mutated retry arrives", func() {
		first, isNew, err := l.RecordMessage(ctx, "SM1", ledger.Fields{UserID: user.ID, Body: "first"})
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew).To(BeTrue())

		second, isNew, err := l.RecordMessage(ctx, "SM1", ledger.Fields{UserID: user.ID, Body: "second"})
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew).To(BeFalse())
		Expect(second.ID).To(Equal(first.ID))
		Expect(second.Body).To(Equal("first"))
	})

	It("converges N concurrent deliveries to one record", func() {
		const n = 12
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			ids   []int64
			fresh int
		)
		for range n {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				msg, isNew, err := l.RecordMessage(ctx, "SMRACE", ledger.Fields{UserID: user.ID, Body: "hi"})
				Expect(err).NotTo(HaveOccurred())
				mu.Lock()
				defer mu.Unlock()
				ids = append(ids, msg.ID)
				if isNew {
					fresh++
				}
			}()
		}
		wg.Wait()

		Expect(fresh).To(Equal(1))
		for _, id := range ids {
			Expect(id).To(Equal(ids[0]))
		}
		stats, err := driver.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Messages).To(Equal(1))
	})

	It("updates the status", func() {
		msg, _, err := l.RecordMessage(ctx, "SM2", ledger.Fields{UserID: user.ID})
		Expect(err).NotTo(HaveOccurred())
		Expect(l.UpdateStatus(ctx, msg.ID, "processed")).To(Succeed())

		got, err := l.Get(ctx, "SM2")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal("processed"))

		Expect(storage.IsNotFound(l.UpdateStatus(ctx, 9999, "x"))).To(BeTrue())
	})
})
