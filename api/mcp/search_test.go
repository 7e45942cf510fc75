package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/identity"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/recall"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/mnemo/pkg/utils/test"
)

var _ = Describe("memory_search tool", func() {
	var (
		ctx    context.Context
		clock  *testutils.Clock
		driver *inmemory.Driver
		server *Server
		user   *storage.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = testutils.NewClock(time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC))
		driver = inmemory.NewDriver(inmemory.WithClock(clock.Now))

		var err error
		server, err = NewServer(Config{
			Identity: identity.NewStore(identity.Config{Users: driver}),
			Searcher: recall.NewSearcher(recall.Config{Users: driver, Memories: driver, Now: clock.Now}),
			Logger:   logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		u := testutils.NewTestUser("+15551230000")
		u.Timezone = "America/New_York"
		user, _, err = driver.InsertUser(ctx, u)
		Expect(err).NotTo(HaveOccurred())

		// 2024-02-29 in New York.
		_, _, err = driver.InsertDirectMemory(ctx, &storage.Memory{
			UserID: user.ID, RequestKey: "k1", ExternalID: "mem-old", Content: "Dentist on Friday", Kind: storage.MemoryDirect,
		})
		Expect(err).NotTo(HaveOccurred())

		// 2024-03-01 in New York.
		clock.Set(time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC))
		_, _, err = driver.InsertDirectMemory(ctx, &storage.Memory{
			UserID: user.ID, RequestKey: "k2", ExternalID: "mem-new", Content: strings.Repeat("x", 400), Kind: storage.MemoryDirect,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("returns the user's memories newest first", func() {
		result, out, err := server.handleMemorySearch(ctx, nil, MemorySearchInput{WhatsappNumber: "+15551230000"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsError).To(BeFalse())
		Expect(out.Count).To(Equal(2))
		Expect(out.Results[0].ExternalID).To(Equal("mem-new"))
		Expect(out.Results[0].Preview).To(HaveLen(previewLen + 3))
		Expect(out.Timezone).To(Equal("America/New_York"))

		text := result.Content[0].(*mcp.TextContent).Text
		var decoded MemorySearchOutput
		Expect(json.Unmarshal([]byte(text), &decoded)).To(Succeed())
		Expect(decoded.Count).To(Equal(2))
	})

	It("applies the window in the user's timezone", func() {
		_, out, err := server.handleMemorySearch(ctx, nil, MemorySearchInput{
			WhatsappNumber: "whatsapp:+15551230000",
			Window:         "yesterday",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Count).To(Equal(1))
		Expect(out.Results[0].ExternalID).To(Equal("mem-old"))
		Expect(*out.WindowStart).To(Equal(time.Date(2024, 2, 29, 5, 0, 0, 0, time.UTC)))
	})

	It("filters by text", func() {
		_, out, err := server.handleMemorySearch(ctx, nil, MemorySearchInput{
			WhatsappNumber: "+15551230000",
			Query:          "dentist",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Count).To(Equal(1))
	})

	It("reports an invalid window as a tool error", func() {
		result, _, err := server.handleMemorySearch(ctx, nil, MemorySearchInput{
			WhatsappNumber: "+15551230000",
			Window:         "the other day",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsError).To(BeTrue())
	})

	It("reports an unknown user as a tool error", func() {
		result, _, err := server.handleMemorySearch(ctx, nil, MemorySearchInput{WhatsappNumber: "+447700900123"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsError).To(BeTrue())
	})
})
