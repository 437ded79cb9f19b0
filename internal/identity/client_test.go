package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"paywallet/internal/failure"
	"paywallet/internal/identity/domain"
)

func validForm() domain.Registration {
	return domain.Registration{FirstName: "Ada", LastName: "Lovelace", Email: "Ada@Example.com", Mobile: "98765 43210", Password: "secret1"}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/" || r.Method != http.MethodGet {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"data":["u1","acc1"]}`))
	})
	mux.HandleFunc("/user/save-user", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["userId"] != "u1" || body["userAccountId"] != "acc1" || body["email"] != "ada@example.com" || body["mobile"] != "9876543210" || body["fullName"] != "Ada Lovelace" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"message":"User created","data":{"userId":"u1","userAccountId":"acc1","firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","mobile":"9876543210"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewClient(srv.URL, time.Second).Register(context.Background(), validForm())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.UserID != "u1" || p.AccountID != "acc1" || p.Name() != "Ada Lovelace" {
		t.Errorf("principal = %+v", p)
	}
}

func TestRegister_ValidationBeforeNetwork(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer srv.Close()
	c := NewClient(srv.URL, time.Second)

	cases := map[string]func(*domain.Registration){
		"firstName": func(f *domain.Registration) { f.FirstName = "A" },
		"lastName":  func(f *domain.Registration) { f.LastName = " " },
		"email":     func(f *domain.Registration) { f.Email = "ada" },
		"mobile":    func(f *domain.Registration) { f.Mobile = "12345" },
		"password":  func(f *domain.Registration) { f.Password = "12345" },
	}
	for field, mutate := range cases {
		form := validForm()
		mutate(&form)
		_, err := c.Register(context.Background(), form)
		var fe *failure.Error
		if !errors.As(err, &fe) || fe.Kind != failure.KindValidation || fe.Field != field {
			t.Errorf("%s: err = %v", field, err)
		}
	}
	if calls != 0 {
		t.Errorf("backend calls = %d, want 0", calls)
	}
}

func TestValidateRegistration_Valid(t *testing.T) {
	if err := ValidateRegistration(validator.New(), normalizeRegistration(validForm())); err != nil {
		t.Errorf("ValidateRegistration: %v", err)
	}
}

func TestLoginPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/login-password" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "right" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success":false,"message":"Invalid credentials"}`))
			return
		}
		w.Write([]byte(`{"success":true,"data":{"userId":"u1","email":"ME@example.com","fullName":"Me","token":"tok"}}`))
	}))
	defer srv.Close()
	c := NewClient(srv.URL, time.Second)

	p, err := c.LoginPassword(context.Background(), "me@example.com", "right")
	if err != nil {
		t.Fatalf("LoginPassword: %v", err)
	}
	if p.UserID != "u1" || p.Email != "me@example.com" || p.AccessToken != "tok" {
		t.Errorf("principal = %+v", p)
	}

	_, err = c.LoginPassword(context.Background(), "me@example.com", "wrong")
	if !errors.Is(err, failure.ErrRemoteRejected) || failure.Message(err) != "Invalid credentials" {
		t.Errorf("wrong password: %v", err)
	}
	if _, err := c.LoginPassword(context.Background(), "", "x"); !errors.Is(err, failure.ErrValidation) {
		t.Errorf("missing identifier: %v", err)
	}
}

func TestLoginOTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["emailOrMobile"] != "me@example.com" || body["otpCode"] != "123456" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"success":false,"message":"Invalid or expired OTP"}`))
			return
		}
		w.Write([]byte(`{"success":true,"data":{"userId":"u1","email":"me@example.com"}}`))
	}))
	defer srv.Close()
	c := NewClient(srv.URL, time.Second)

	p, err := c.LoginOTP(context.Background(), "me@example.com", "123456")
	if err != nil || p.UserID != "u1" {
		t.Fatalf("LoginOTP = %+v, %v", p, err)
	}
	if _, err := c.LoginOTP(context.Background(), "me@example.com", "000000"); !errors.Is(err, failure.ErrRemoteRejected) {
		t.Errorf("wrong code: %v", err)
	}
}

func TestGenerateIDs_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":["only-one"]}`))
	}))
	defer srv.Close()
	if _, _, err := NewClient(srv.URL, time.Second).GenerateIDs(context.Background()); !errors.Is(err, failure.ErrRemoteRejected) {
		t.Errorf("err = %v, want ErrRemoteRejected", err)
	}
}
