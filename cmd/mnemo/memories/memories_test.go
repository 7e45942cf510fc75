package memoriescmder_test

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/backend"
	memoriescmder "github.com/papercomputeco/mnemo/cmd/mnemo/memories"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/identity"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/recall"
	"github.com/papercomputeco/mnemo/pkg/recorder"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/window"
)

var _ = Describe("memories command", func() {
	var (
		configDir string
		out       *bytes.Buffer
	)

	run := func(args ...string) error {
		root := &cobra.Command{Use: "mnemo", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(memoriescmder.NewMemoriesCmd())
		root.SetOut(out)
		root.SetArgs(append([]string{"memories", "--config-dir", configDir}, args...))
		return root.Execute()
	}

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}

		ctx := context.Background()
		driver, err := backend.OpenStorage(ctx, config.NewDefaultConfig(), configDir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()

		user, _, err := identity.NewStore(identity.Config{Users: driver}).Resolve(ctx, identity.Contact{Phone: "whatsapp:+14155550100"})
		Expect(err).NotTo(HaveOccurred())

		rec := recorder.New(recorder.Config{Store: driver})
		for i, text := range []string{"bought milk", "called the dentist"} {
			_, _, err := rec.CreateMemoryDirect(ctx, user.ID, "", nil, func(context.Context) (*memory.Inference, error) {
				return &memory.Inference{Text: text, ExternalID: []string{"mem-1", "mem-2"}[i]}, nil
			})
			Expect(err).NotTo(HaveOccurred())
		}
	})

	It("prints markdown for a number", func() {
		Expect(run("--number", "+1 415 555 0100")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("# Memories for +14155550100"))
		Expect(out.String()).To(ContainSubstring("bought milk"))
		Expect(out.String()).To(ContainSubstring("called the dentist"))
	})

	It("filters by query and prints JSON", func() {
		Expect(run("--number", "+14155550100", "--query", "MILK", "--json")).To(Succeed())

		var res recall.Result
		Expect(json.Unmarshal(out.Bytes(), &res)).To(Succeed())
		Expect(res.Memories).To(HaveLen(1))
		Expect(res.Memories[0].ExternalID).To(Equal("mem-1"))
	})

	It("scopes by window", func() {
		Expect(run("--number", "+14155550100", "--window", "today", "--json")).To(Succeed())

		var res recall.Result
		Expect(json.Unmarshal(out.Bytes(), &res)).To(Succeed())
		Expect(res.Window).NotTo(BeNil())
		Expect(res.Memories).To(HaveLen(2))
	})

	It("rejects an invalid window", func() {
		err := run("--number", "+14155550100", "--window", "someday")
		Expect(err).To(MatchError(window.ErrInvalidTimeExpression))
	})

	It("reports an unknown sender", func() {
		Expect(run("--number", "+447700900123")).To(MatchError(ContainSubstring("no user found")))
	})

	It("requires a number or profile", func() {
		Expect(run()).To(MatchError(backend.ErrNoNumber))
	})
})

var _ = Describe("Markdown", func() {
	It("renders times in the user's timezone", func() {
		user := &storage.User{PhoneNumber: "+919876543210"}
		res := &recall.Result{
			Timezone: "Asia/Kolkata",
			Memories: []*storage.Memory{{
				ExternalID: "mem-9",
				Content:    "paid rent\ntoday",
				CreatedAt:  time.Date(2024, 3, 1, 18, 45, 0, 0, time.UTC),
			}},
		}

		md := memoriescmder.Markdown(user, res)
		Expect(md).To(ContainSubstring("**2024-03-02 00:15** paid rent today `mem-9`"))
	})

	It("says when nothing matched", func() {
		md := memoriescmder.Markdown(&storage.User{PhoneNumber: "+14155550100"}, &recall.Result{Timezone: "UTC"})
		Expect(md).To(ContainSubstring("No memories found."))
	})
})
