package media_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/media"
)

var _ = Describe("Fetcher", func() {
	var server *httptest.Server

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "AC1" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			switch r.URL.Path {
			case "/big":
				_, _ = w.Write(make([]byte, 64))
			default:
				_, _ = w.Write([]byte("bytes"))
			}
		}))
		DeferCleanup(server.Close)
	})

	It("downloads with basic auth", func() {
		f := media.NewFetcher(media.FetcherConfig{Username: "AC1", Password: "secret"})
		data, err := f.Fetch(context.Background(), server.URL+"/ME1")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("bytes"))
	})

	It("fails on non-200 responses", func() {
		f := media.NewFetcher(media.FetcherConfig{})
		_, err := f.Fetch(context.Background(), server.URL+"/ME1")
		Expect(err).To(MatchError(ContainSubstring("401")))
	})

	It("enforces the size cap", func() {
		f := media.NewFetcher(media.FetcherConfig{Username: "AC1", Password: "secret", MaxBytes: 16})
		_, err := f.Fetch(context.Background(), server.URL+"/big")
		Expect(err).To(MatchError(media.ErrTooLarge))
	})
})
