package media_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/media"
)

var _ = Describe("HashContent", func() {
	It("is the hex sha256 of the bytes", func() {
		Expect(media.HashContent([]byte("abc"))).To(Equal("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"))
	})

	It("is stable and valid", func() {
		h := media.HashContent([]byte{0, 1, 2})
		Expect(media.HashContent([]byte{0, 1, 2})).To(Equal(h))
		Expect(media.ValidHash(h)).To(BeTrue())
	})

	It("rejects malformed hashes", func() {
		Expect(media.ValidHash("abc")).To(BeFalse())
		Expect(media.ValidHash("BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD")).To(BeFalse())
	})
})

var _ = DescribeTable("Extension",
	func(contentType, ext string) {
		Expect(media.Extension(contentType)).To(Equal(ext))
	},
	Entry("jpeg", "image/jpeg", ".jpg"),
	Entry("quicktime", "video/quicktime", ".mov"),
	Entry("ogg with codec", "audio/ogg; codecs=opus", ".ogg"),
	Entry("upper case", "Application/PDF", ".pdf"),
	Entry("unknown", "application/zip", ".bin"),
	Entry("empty", "", ".bin"),
)

var _ = Describe("StorageKey", func() {
	It("shards by the hash prefix", func() {
		h := media.HashContent([]byte("abc"))
		Expect(media.StorageKey(h, "image/png")).To(Equal("media/ba/" + h + ".png"))
	})
})

var _ = Describe("ProviderMediaID", func() {
	It("takes the last path segment", func() {
		Expect(media.ProviderMediaID("https://api.twilio.com/2010-04-01/Accounts/AC1/Messages/MM1/Media/ME123")).To(Equal("ME123"))
		Expect(media.ProviderMediaID("ME999")).To(Equal("ME999"))
	})
})
