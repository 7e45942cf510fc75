package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/dotdir"
)

// enter makes dir the working directory until the test ends.
func enter(dir string) {
	prev, err := os.Getwd()
	Expect(err).NotTo(HaveOccurred())
	Expect(os.Chdir(dir)).To(Succeed())
	DeferCleanup(func() { _ = os.Chdir(prev) })
}

var _ = Describe("Manager", func() {
	var (
		root string
		m    *dotdir.Manager
	)

	BeforeEach(func() {
		var err error
		// EvalSymlinks keeps comparisons stable where the temp dir is a
		// symlink (macOS /var).
		root, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		GinkgoT().Setenv("HOME", filepath.Join(root, "home"))
		m = dotdir.NewManager()
	})

	Describe("Target", func() {
		It("creates a missing override directory", func() {
			dir := filepath.Join(root, "state", "mnemo")
			got, err := m.Target(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(dir))
			Expect(dir).To(BeADirectory())
		})

		DescribeTable("precedence",
			func(localDir bool, override string, want func() string) {
				work := filepath.Join(root, "work")
				Expect(os.MkdirAll(work, 0o755)).To(Succeed())
				if localDir {
					Expect(os.Mkdir(filepath.Join(work, ".mnemo"), 0o755)).To(Succeed())
				}
				enter(work)

				if override != "" {
					override = filepath.Join(root, override)
				}
				got, err := m.Target(override)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(filepath.Join(root, want())))
				Expect(got).To(BeADirectory())
			},
			Entry("override beats a local dir", true, "override", func() string { return "override" }),
			Entry("local dir beats home", true, "", func() string { return "work/.mnemo" }),
			Entry("home is the fallback", false, "", func() string { return "home/.mnemo" }),
		)
	})

	Describe("Path", func() {
		It("places names inside the target", func() {
			got, err := m.Path(root, "mnemo.db")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(filepath.Join(root, "mnemo.db")))
		})

		It("resolves against the home fallback", func() {
			enter(root)
			got, err := m.Path("", "profile.json")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(filepath.Join(root, "home", ".mnemo", "profile.json")))
		})
	})
})
