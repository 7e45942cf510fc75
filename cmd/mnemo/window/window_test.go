package windowcmder_test

import (
	"bytes"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	windowcmder "github.com/papercomputeco/mnemo/cmd/mnemo/window"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
)

var _ = Describe("window command", func() {
	var (
		configDir string
		out       *bytes.Buffer
	)

	run := func(args ...string) error {
		root := &cobra.Command{Use: "mnemo", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(windowcmder.NewWindowCmd())
		root.SetOut(out)
		root.SetArgs(append([]string{"window", "--config-dir", configDir, "--at", "2024-03-01T15:00:00Z", "--json"}, args...))
		return root.Execute()
	}

	decode := func() windowcmder.Output {
		var o windowcmder.Output
		Expect(json.Unmarshal(out.Bytes(), &o)).To(Succeed())
		return o
	}

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
	})

	It("resolves today in an explicit timezone", func() {
		Expect(run("today", "--tz", "America/New_York")).To(Succeed())

		o := decode()
		Expect(o.Timezone).To(Equal("America/New_York"))
		Expect(o.Start).To(BeTemporally("==", time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)))
		Expect(o.End).To(BeTemporally("==", time.Date(2024, 3, 2, 5, 0, 0, 0, time.UTC)))
		Expect(o.Hours).To(Equal(24.0))
	})

	It("joins multi-word expressions", func() {
		Expect(run("last", "7", "days", "--tz", "UTC")).To(Succeed())
		Expect(decode().Expression).To(Equal("last 7 days"))
	})

	It("infers the timezone from a number", func() {
		Expect(run("today", "--number", "+14155550100")).To(Succeed())
		Expect(decode().Timezone).To(HavePrefix("America/"))
	})

	It("uses the saved profile", func() {
		Expect(dotdir.NewManager().SaveProfile(&dotdir.Profile{Number: "+447700900123", Timezone: "Europe/London"}, configDir)).To(Succeed())
		Expect(run("today")).To(Succeed())
		Expect(decode().Timezone).To(Equal("Europe/London"))
	})

	It("falls back to UTC", func() {
		Expect(run("today")).To(Succeed())
		Expect(decode().Timezone).To(Equal("UTC"))
	})

	It("rejects unknown timezones", func() {
		Expect(run("today", "--tz", "Mars/Olympus")).To(MatchError(ContainSubstring("unknown timezone")))
	})

	It("rejects unparseable expressions", func() {
		Expect(run("the", "other", "day", "--tz", "UTC")).To(HaveOccurred())
	})
})
