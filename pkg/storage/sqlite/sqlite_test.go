package sqlite_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlite"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlstore"
	testutils "github.com/papercomputeco/mnemo/pkg/utils/test"
)

var _ = testutils.DescribeDriver("sqlite", func(now func() time.Time) storage.Driver {
	dbPath := filepath.Join(GinkgoT().TempDir(), "mnemo.db")
	d, err := sqlite.NewDriver(context.Background(), dbPath, sqlstore.WithClock(now))
	Expect(err).NotTo(HaveOccurred())
	return d
})

var _ = Describe("Driver", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("NewDriver", func() {
		It("creates the database file and is safe to migrate twice", func() {
			dbPath := filepath.Join(GinkgoT().TempDir(), "test.db")

			d, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Migrate(ctx)).To(Succeed())
			Expect(d.Close()).To(Succeed())

			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())

			// Reopening an existing database keeps its rows.
			d, err = sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer d.Close()
			stats, err := d.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Users).To(BeZero())
		})
	})

	Describe("DSN", func() {
		It("enables foreign keys and a busy timeout", func() {
			dsn := sqlite.DSN("/tmp/x.db")
			Expect(dsn).To(HavePrefix("file:/tmp/x.db?"))
			Expect(dsn).To(ContainSubstring("_foreign_keys=on"))
			Expect(dsn).To(ContainSubstring("_busy_timeout=5000"))
		})

		It("appends to an existing query string", func() {
			Expect(sqlite.DSN("file:x.db?mode=memory")).To(HavePrefix("file:x.db?mode=memory&"))
		})
	})

	Describe("Classify", func() {
		It("marks busy and locked as transient", func() {
			err := sqlite.Classify(sqlite3.Error{Code: sqlite3.ErrBusy})
			Expect(storage.IsTransient(err)).To(BeTrue())

			var raw sqlite3.Error
			Expect(errors.As(err, &raw)).To(BeTrue())
		})

		It("marks constraint failures", func() {
			err := sqlite.Classify(sqlite3.Error{Code: sqlite3.ErrConstraint})
			Expect(err).To(MatchError(storage.ErrConstraint))
			Expect(storage.IsTransient(err)).To(BeFalse())
		})

		It("leaves other errors alone", func() {
			plain := errors.New("boom")
			Expect(sqlite.Classify(plain)).To(BeIdenticalTo(plain))
			Expect(sqlite.Classify(nil)).To(BeNil())
		})
	})
})
