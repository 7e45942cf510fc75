package usecmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	usecmder "github.com/papercomputeco/mnemo/cmd/mnemo/use"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
	"github.com/papercomputeco/mnemo/pkg/identity"
)

var _ = Describe("use command", func() {
	var (
		configDir string
		out       *bytes.Buffer
	)

	run := func(args ...string) error {
		root := &cobra.Command{Use: "mnemo", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(usecmder.NewUseCmd())
		root.SetOut(out)
		root.SetArgs(append([]string{"use", "--config-dir", configDir}, args...))
		return root.Execute()
	}

	saved := func() *dotdir.Profile {
		p, err := dotdir.NewManager().LoadProfile(configDir)
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
	})

	It("normalizes and saves the number with its inferred timezone", func() {
		Expect(run("whatsapp:+919876543210")).To(Succeed())

		p := saved()
		Expect(p.Number).To(Equal("+919876543210"))
		Expect(p.Timezone).To(Equal(identity.InferTimezone("+919876543210")))
	})

	It("keeps an explicit timezone", func() {
		Expect(run("+14155550100", "--tz", "Europe/Berlin")).To(Succeed())
		Expect(saved().Timezone).To(Equal("Europe/Berlin"))
	})

	It("rejects invalid input", func() {
		Expect(run("not-a-number")).To(MatchError(identity.ErrInvalidContact))
		Expect(run("+14155550100", "--tz", "Nowhere/Land")).To(HaveOccurred())
		Expect(saved()).To(BeNil())
	})

	It("shows and clears the selection", func() {
		Expect(run()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No sender selected."))

		Expect(run("+14155550100")).To(Succeed())
		out.Reset()
		Expect(run()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("+14155550100"))

		Expect(run("--clear")).To(Succeed())
		Expect(saved()).To(BeNil())
	})
})
