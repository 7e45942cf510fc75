package local_test

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/blob"
	"github.com/papercomputeco/mnemo/pkg/blob/local"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		root  string
		store *local.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()

		var err error
		store, err = local.NewStore(root)
		Expect(err).NotTo(HaveOccurred())
	})

	It("writes the bytes under the key and returns a file URL", func() {
		u, err := store.Put(ctx, "media/ab/abcdef.jpg", []byte("jpeg bytes"), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())

		parsed, err := url.Parse(u)
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed.Scheme).To(Equal("file"))

		data, err := os.ReadFile(filepath.Join(root, "media", "ab", "abcdef.jpg"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("jpeg bytes"))
	})

	It("overwrites the same key idempotently", func() {
		_, err := store.Put(ctx, "media/x.bin", []byte("same"), "")
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Put(ctx, "media/x.bin", []byte("same"), "")
		Expect(err).NotTo(HaveOccurred())

		entries, err := os.ReadDir(filepath.Join(root, "media"))
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
	})

	It("rejects keys that escape the root", func() {
		_, err := store.Put(ctx, "../outside.bin", []byte("x"), "")
		Expect(err).To(MatchError(blob.ErrInvalidKey))

		_, err = store.Put(ctx, "/etc/passwd", []byte("x"), "")
		Expect(err).To(MatchError(blob.ErrInvalidKey))

		_, err = store.Put(ctx, "", []byte("x"), "")
		Expect(err).To(MatchError(blob.ErrInvalidKey))
	})

	It("honors a cancelled context", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.Put(cctx, "media/y.bin", []byte("x"), "")
		Expect(err).To(MatchError(context.Canceled))
	})
})
