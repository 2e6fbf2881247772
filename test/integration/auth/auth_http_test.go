// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pronoia Contributors

//go:build integration

package auth_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/pronoia/pronoia/internal/web"
)

type response struct {
	status int
	body   map[string]any
}

func call(method, path, body, authorization string) response {
	GinkgoHelper()
	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequestWithContext(env.ctx, method, env.baseURL+path, strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequestWithContext(env.ctx, method, env.baseURL+path, nil)
		Expect(err).NotTo(HaveOccurred())
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := env.client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	out := response{status: resp.StatusCode}
	Expect(json.NewDecoder(resp.Body).Decode(&out.body)).To(Succeed())
	return out
}

func register(email, name, surname, password string) response {
	GinkgoHelper()
	body := fmt.Sprintf(`{"email":%q,"name":%q,"surname":%q,"password":%q}`, email, name, surname, password)
	return call(http.MethodPost, "/auth/register", body, "")
}

func login(email, password string) response {
	GinkgoHelper()
	return call(http.MethodPost, "/auth/login", fmt.Sprintf(`{"email":%q,"password":%q}`, email, password), "")
}

func validate(token string) response {
	GinkgoHelper()
	return call(http.MethodGet, "/auth/validate", "", "Bearer "+token)
}

var _ = Describe("Registration, login and token validation", func() {
	It("completes the register, login, validate round trip", func() {
		r := register("a@x.com", "A", "B", "pw1")
		Expect(r.status).To(Equal(http.StatusOK))
		Expect(r.body).To(Equal(map[string]any{"result": true}))

		r = login("a@x.com", "pw1")
		Expect(r.status).To(Equal(http.StatusOK))
		token, ok := r.body["token"].(string)
		Expect(ok).To(BeTrue())
		Expect(token).NotTo(BeEmpty())
		Expect(r.body["user"]).To(HaveKeyWithValue("email", "a@x.com"))

		r = validate(token)
		Expect(r.status).To(Equal(http.StatusOK))
		Expect(r.body).To(HaveKeyWithValue("email", "a@x.com"))
		Expect(r.body).To(HaveKeyWithValue("name", "A"))
		Expect(r.body).To(HaveKeyWithValue("surname", "B"))
		Expect(r.body).To(HaveKeyWithValue("isPrivate", true))
		Expect(r.body).To(HaveKeyWithValue("isActive", true))
		Expect(r.body).To(HaveKey("id"))
		Expect(r.body).To(HaveKey("createdAt"))
		Expect(r.body).NotTo(HaveKey("passwordHash"))
	})

	It("rejects a second registration for the same email in any case", func() {
		Expect(register("a@x.com", "A", "B", "pw1").status).To(Equal(http.StatusOK))

		r := register("A@X.com", "C", "D", "pw2")
		Expect(r.status).To(Equal(http.StatusBadRequest))
		Expect(r.body).To(HaveKeyWithValue("result", false))

		Expect(login("a@x.com", "pw1").status).To(Equal(http.StatusOK))
		Expect(login("a@x.com", "pw2").status).To(Equal(http.StatusUnauthorized))
	})

	It("stores only a hash of the password", func() {
		Expect(register("a@x.com", "A", "B", "pw1").status).To(Equal(http.StatusOK))

		var hash string
		err := env.pool.QueryRow(env.ctx, "SELECT password_hash FROM users WHERE email = $1", "a@x.com").Scan(&hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(hash).To(HavePrefix("$argon2id$"))
		Expect(hash).NotTo(ContainSubstring("pw1"))
	})

	It("fails login identically for unknown emails and wrong passwords", func() {
		Expect(register("a@x.com", "A", "B", "pw1").status).To(Equal(http.StatusOK))

		wrong := login("a@x.com", "nope")
		unknown := login("ghost@x.com", "nope")
		Expect(wrong.status).To(Equal(http.StatusUnauthorized))
		Expect(unknown.status).To(Equal(http.StatusUnauthorized))
		Expect(wrong.body).To(Equal(unknown.body))
		Expect(wrong.body).To(HaveKeyWithValue("message", web.MsgBadCredentials))
	})

	It("rejects expired and tampered tokens", func() {
		Expect(register("a@x.com", "A", "B", "pw1").status).To(Equal(http.StatusOK))
		r := login("a@x.com", "pw1")
		token := r.body["token"].(string)

		i := strings.LastIndex(token, ".") + 1
		flipped := "A"
		if token[i] == 'A' {
			flipped = "B"
		}
		Expect(validate(token[:i] + flipped + token[i+1:]).status).To(Equal(http.StatusUnauthorized))

		env.clock.advance(time.Hour + time.Second)
		Expect(validate(token).status).To(Equal(http.StatusUnauthorized))
	})

	It("reports a deleted user behind a valid token", func() {
		Expect(register("a@x.com", "A", "B", "pw1").status).To(Equal(http.StatusOK))
		token := login("a@x.com", "pw1").body["token"].(string)

		_, err := env.pool.Exec(env.ctx, "DELETE FROM users WHERE email = $1", "a@x.com")
		Expect(err).NotTo(HaveOccurred())

		r := validate(token)
		Expect(r.status).To(Equal(http.StatusUnauthorized))
		Expect(r.body).To(HaveKeyWithValue("message", "user not found"))
	})

	It("rejects malformed Authorization headers before touching the token", func() {
		for _, header := range []string{"bearer abc", "Bearer", "Token abc", "Bearer  abc"} {
			r := call(http.MethodGet, "/auth/validate", "", header)
			Expect(r.status).To(Equal(http.StatusUnauthorized), "header %q", header)
			Expect(r.body).To(HaveKeyWithValue("message", web.MsgInvalidHeader))
		}
	})

	It("lets exactly one of many concurrent registrations for an email succeed", func() {
		const workers = 8
		var wg sync.WaitGroup
		statuses := make(chan int, workers)
		for i := range workers {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				statuses <- register("race@x.com", "R", "C", fmt.Sprintf("pw%d", i)).status
			}(i)
		}
		wg.Wait()
		close(statuses)

		ok, rejected := 0, 0
		for status := range statuses {
			switch status {
			case http.StatusOK:
				ok++
			case http.StatusBadRequest:
				rejected++
			}
		}
		Expect(ok).To(Equal(1))
		Expect(rejected).To(Equal(workers - 1))

		var count int
		err := env.pool.QueryRow(env.ctx, "SELECT count(*) FROM users WHERE LOWER(email) = $1", "race@x.com").Scan(&count)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})
})
