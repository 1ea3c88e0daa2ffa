package engines

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// popPercentEncode encodes s the way the Aliyun POP RPC signature expects:
// RFC 3986 unreserved characters pass through, space is %20.
func popPercentEncode(s string) string {
	e := url.QueryEscape(s)
	e = strings.ReplaceAll(e, "+", "%20")
	e = strings.ReplaceAll(e, "*", "%2A")
	e = strings.ReplaceAll(e, "%7E", "~")
	return e
}

// popSignature computes the HMAC-SHA1 signature of an RPC-style request.
func popSignature(method string, params url.Values, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, popPercentEncode(k)+"="+popPercentEncode(params.Get(k)))
	}
	canonical := strings.Join(pairs, "&")

	stringToSign := method + "&" + popPercentEncode("/") + "&" + popPercentEncode(canonical)
	return hmacSHA1(secret+"&", stringToSign)
}

// popQuery returns the signed query string for params.
func popQuery(method string, params url.Values, secret string) string {
	signed := url.Values{}
	for k, v := range params {
		signed[k] = v
	}
	signed.Set("Signature", popSignature(method, params, secret))

	keys := make([]string, 0, len(signed))
	for k := range signed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, popPercentEncode(k)+"="+popPercentEncode(signed.Get(k)))
	}
	return strings.Join(pairs, "&")
}

// nlsSignature signs a gateway request from its method, resource and the
// Accept, Content-MD5, Content-Type, Date and x-nls-* headers. Empty
// components are left out of the string to sign.
func nlsSignature(method, uri string, h http.Header, secret string) string {
	var nlsHeaders []string
	for k := range h {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "x-nls-") {
			nlsHeaders = append(nlsHeaders, lk+":"+strings.TrimSpace(h.Get(k)))
		}
	}
	sort.Strings(nlsHeaders)

	parts := []string{
		method,
		h.Get("Accept"),
		h.Get("Content-MD5"),
		h.Get("Content-Type"),
		h.Get("Date"),
		strings.Join(nlsHeaders, "\n"),
		uri,
	}
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return hmacSHA1(secret, strings.Join(nonEmpty, "\n"))
}

func contentMD5(body []byte) string {
	sum := md5.Sum(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func hmacSHA1(key, data string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
