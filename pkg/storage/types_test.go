package storage_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/storage"
)

var _ = Describe("Message status", func() {
	It("round-trips failed memory attempts", func() {
		Expect(storage.RetryStatus(2)).To(Equal("memory_retry_2"))
		Expect(storage.MemoryAttempts(storage.RetryStatus(2))).To(Equal(2))
	})

	DescribeTable("counts no attempts for other statuses",
		func(status string) {
			Expect(storage.MemoryAttempts(status)).To(BeZero())
		},
		Entry("received", storage.StatusReceived),
		Entry("exhausted", storage.StatusMemoryFailed),
		Entry("garbage suffix", "memory_retry_x"),
		Entry("negative", "memory_retry_-3"),
		Entry("bare number", "7"),
	)
})
