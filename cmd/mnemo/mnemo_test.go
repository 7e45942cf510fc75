package mnemocmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	mnemocmder "github.com/papercomputeco/mnemo/cmd/mnemo"
)

var _ = Describe("NewMnemoCmd", func() {
	It("wires every subcommand", func() {
		cmd := mnemocmder.NewMnemoCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "migrate", "memories", "window", "use", "config", "version"))
	})

	It("carries the global flags", func() {
		cmd := mnemocmder.NewMnemoCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("passes --config-dir down to subcommands", func() {
		var out bytes.Buffer
		cmd := mnemocmder.NewMnemoCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--config-dir", GinkgoT().TempDir(), "window", "today", "--tz", "UTC", "--json"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring(`"timezone": "UTC"`))
	})
})
