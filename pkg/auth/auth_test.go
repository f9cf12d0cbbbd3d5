package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smartystreets/goconvey/convey"
)

func TestProviderTokens(t *testing.T) {
	convey.Convey("Given a provider with a secret", t, func() {
		now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
		p := NewProvider("s3cret")
		p.now = func() time.Time { return now }
		ada := Identity{UserID: "u-ada", Name: "Ada", Student: true}

		convey.Convey("Then an issued token round-trips", func() {
			tok, err := p.Issue(ada, time.Hour)
			convey.So(err, convey.ShouldBeNil)
			got, err := p.Validate(tok)
			convey.So(err, convey.ShouldBeNil)
			convey.So(got, convey.ShouldResemble, ada)
		})

		convey.Convey("Then an expired token is rejected", func() {
			tok, _ := p.Issue(ada, time.Minute)
			p.now = func() time.Time { return now.Add(time.Hour) }
			_, err := p.Validate(tok)
			convey.So(err, convey.ShouldEqual, ErrExpiredToken)
		})

		convey.Convey("Then a token signed with another secret is rejected", func() {
			other := NewProvider("other")
			other.now = p.now
			tok, _ := other.Issue(ada, time.Hour)
			_, err := p.Validate(tok)
			convey.So(err, convey.ShouldEqual, ErrInvalidSignature)
		})

		convey.Convey("Then a token of another algorithm family is rejected", func() {
			tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u-ada"}).
				SignedString(jwt.UnsafeAllowNoneSignatureType)
			convey.So(err, convey.ShouldBeNil)
			_, err = p.Validate(tok)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("Then garbage is rejected", func() {
			_, err := p.Validate("not.a.token")
			convey.So(err, convey.ShouldEqual, ErrInvalidToken)
		})

		convey.Convey("Then a token without identity is anonymous", func() {
			tok, _ := p.Issue(Identity{}, time.Hour)
			_, err := p.Validate(tok)
			convey.So(err, convey.ShouldEqual, ErrAnonymous)
		})
	})
}

func TestMiddleware(t *testing.T) {
	convey.Convey("Given a protected handler", t, func() {
		var seen Identity
		h := func(p *Provider) http.Handler {
			return p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = FromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			}))
		}

		convey.Convey("With a secret, a bearer token is required", func() {
			p := NewProvider("s3cret")
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			w := httptest.NewRecorder()
			h(p).ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusUnauthorized)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, ErrMissingToken.Error())

			tok, _ := p.Issue(Identity{UserID: "u-1", Name: "Grace", Teacher: true}, time.Hour)
			req = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.Header.Set("Authorization", "Bearer "+tok)
			w = httptest.NewRecorder()
			h(p).ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusNoContent)
			convey.So(seen, convey.ShouldResemble, Identity{UserID: "u-1", Name: "Grace", Teacher: true})
		})

		convey.Convey("Without a secret, the development headers are trusted", func() {
			p := NewProvider("")
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.Header.Set(HeaderName, " Ada ")
			w := httptest.NewRecorder()
			h(p).ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusNoContent)
			convey.So(seen, convey.ShouldResemble, Identity{Name: "Ada"})

			req = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			w = httptest.NewRecorder()
			h(p).ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusUnauthorized)
		})
	})
}
