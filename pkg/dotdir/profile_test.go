package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/dotdir"
)

var _ = Describe("dotdir.Manager profile", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		m = dotdir.NewManager()
	})

	Describe("LoadProfile", func() {
		It("returns nil when no profile exists", func() {
			profile, err := m.LoadProfile(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(profile).To(BeNil())
		})

		It("loads a saved profile file", func() {
			data := `{"number":"+919876543210","timezone":"Asia/Kolkata"}`
			Expect(os.WriteFile(filepath.Join(tmpDir, "profile.json"), []byte(data), 0o600)).To(Succeed())

			profile, err := m.LoadProfile(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(profile.Number).To(Equal("+919876543210"))
			Expect(profile.Timezone).To(Equal("Asia/Kolkata"))
		})

		It("returns error for invalid JSON", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "profile.json"), []byte("not json"), 0o600)).To(Succeed())

			profile, err := m.LoadProfile(tmpDir)
			Expect(err).To(HaveOccurred())
			Expect(profile).To(BeNil())
		})
	})

	Describe("SaveProfile", func() {
		It("round-trips through LoadProfile", func() {
			Expect(m.SaveProfile(&dotdir.Profile{Number: "+14155550100"}, tmpDir)).To(Succeed())

			profile, err := m.LoadProfile(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(profile).To(Equal(&dotdir.Profile{Number: "+14155550100"}))
		})

		It("overwrites an existing profile", func() {
			Expect(m.SaveProfile(&dotdir.Profile{Number: "+14155550100"}, tmpDir)).To(Succeed())
			Expect(m.SaveProfile(&dotdir.Profile{Number: "+447700900123"}, tmpDir)).To(Succeed())

			profile, err := m.LoadProfile(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(profile.Number).To(Equal("+447700900123"))
		})

		It("rejects a nil profile", func() {
			Expect(m.SaveProfile(nil, tmpDir)).To(MatchError("cannot save nil profile"))
		})
	})

	Describe("ClearProfile", func() {
		It("removes the profile file", func() {
			Expect(m.SaveProfile(&dotdir.Profile{Number: "+14155550100"}, tmpDir)).To(Succeed())
			Expect(m.ClearProfile(tmpDir)).To(Succeed())

			_, err := os.Stat(filepath.Join(tmpDir, "profile.json"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("is a no-op when nothing is saved", func() {
			Expect(m.ClearProfile(tmpDir)).To(Succeed())
		})
	})
})
