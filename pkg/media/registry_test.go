package media_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/media"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlite"
	testutils "github.com/papercomputeco/mnemo/pkg/utils/test"
)

var _ = Describe("Registry", func() {
	var (
		ctx      context.Context
		driver   *sqlite.Driver
		blobs    *testutils.MockBlobStore
		registry *media.Registry
		msgA     *storage.Message
		msgB     *storage.Message
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		driver, err = sqlite.NewDriver(ctx, filepath.Join(GinkgoT().TempDir(), "media.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(driver.Close)

		user, _, err := driver.InsertUser(ctx, testutils.NewTestUser("+15551230000"))
		Expect(err).NotTo(HaveOccurred())
		msgA, _, err = driver.InsertMessage(ctx, testutils.NewTestMessage(user.ID, "SMA", ""))
		Expect(err).NotTo(HaveOccurred())
		msgB, _, err = driver.InsertMessage(ctx, testutils.NewTestMessage(user.ID, "SMB", ""))
		Expect(err).NotTo(HaveOccurred())

		blobs = testutils.NewMockBlobStore()
		registry = media.NewRegistry(media.Config{Media: driver, Blob: blobs})
	})

	It("rejects invalid hashes", func() {
		_, _, err := registry.RecordMedia(ctx, "nope", media.Metadata{})
		Expect(err).To(MatchError(media.ErrInvalidHash))
	})

	It("reports isNew once and counts every duplicate", func() {
		hash := media.HashContent([]byte("photo"))
		_, isNew, err := registry.RecordMedia(ctx, hash, media.Metadata{ContentType: "image/jpeg"})
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew).To(BeTrue())

		for i := 1; i <= 3; i++ {
			file, isNew, err := registry.RecordMedia(ctx, hash, media.Metadata{ContentType: "image/jpeg"})
			Expect(err).NotTo(HaveOccurred())
			Expect(isNew).To(BeFalse())
			Expect(file.ReuseCount).To(Equal(int64(i)))
		}
	})

	It("stores identical bytes forwarded in two messages once", func() {
		payload := []byte("the same picture")

		first, err := registry.Attach(ctx, msgA.ID, media.Attachment{ProviderMediaID: "ME1", ContentType: "image/jpeg", Data: payload})
		Expect(err).NotTo(HaveOccurred())
		Expect(first.IsNew).To(BeTrue())
		Expect(first.Uploaded).To(BeTrue())
		Expect(first.Linked).To(BeTrue())

		second, err := registry.Attach(ctx, msgB.ID, media.Attachment{ProviderMediaID: "ME2", ContentType: "image/jpeg", Data: payload})
		Expect(err).NotTo(HaveOccurred())
		Expect(second.IsNew).To(BeFalse())
		Expect(second.Uploaded).To(BeFalse())
		Expect(second.File.ID).To(Equal(first.File.ID))
		Expect(second.File.References()).To(Equal(int64(2)))

		Expect(blobs.PutCount()).To(Equal(1))
		stats, err := driver.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.MediaFiles).To(Equal(1))
		Expect(stats.MediaLinks).To(Equal(2))

		files, err := registry.MessageMedia(ctx, msgB.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(files).To(HaveLen(1))
		Expect(files[0].StorageKey).To(Equal(media.StorageKey(media.HashContent(payload), "image/jpeg")))
	})

	It("relinks an existing pair as a no-op", func() {
		file, _, err := registry.RecordMedia(ctx, media.HashContent([]byte("x")), media.Metadata{})
		Expect(err).NotTo(HaveOccurred())

		linked, err := registry.LinkMediaToMessage(ctx, msgA.ID, file.ID, "ME1")
		Expect(err).NotTo(HaveOccurred())
		Expect(linked).To(BeTrue())
		for range 4 {
			linked, err = registry.LinkMediaToMessage(ctx, msgA.ID, file.ID, "ME1")
			Expect(err).NotTo(HaveOccurred())
			Expect(linked).To(BeFalse())
		}

		stats, err := driver.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.MediaLinks).To(Equal(1))
	})

	It("retries a pending upload on the next sighting", func() {
		payload := []byte("flaky upload")
		blobs.Fail = true

		first, err := registry.Attach(ctx, msgA.ID, media.Attachment{ContentType: "image/png", Data: payload})
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Uploaded).To(BeFalse())
		Expect(first.File.Stored()).To(BeFalse())
		Expect(first.Linked).To(BeTrue())

		blobs.Fail = false
		second, err := registry.Attach(ctx, msgB.ID, media.Attachment{ContentType: "image/png", Data: payload})
		Expect(err).NotTo(HaveOccurred())
		Expect(second.IsNew).To(BeFalse())
		Expect(second.Uploaded).To(BeTrue())

		stored, err := driver.GetMedia(ctx, first.File.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Stored()).To(BeTrue())
	})

	It("registers without uploading when no blob store is configured", func() {
		bare := media.NewRegistry(media.Config{Media: driver})
		out, err := bare.Attach(ctx, msgA.ID, media.Attachment{Data: []byte("no blob")})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.IsNew).To(BeTrue())
		Expect(out.Uploaded).To(BeFalse())
	})
})
