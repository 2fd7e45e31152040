// Package signing builds the signed form body expected by the privileged
// settings API.
//
// A request is authorized by a checkcode computed over a canonical string:
//
//	canonical = k1=v1&k2=v2&...&timestamp=<unix seconds>   (keys sorted ascending)
//	checkcode = upper(hex(HMAC-SHA1(secret, canonical)))
//	body      = canonical&checkcode=<checkcode>
//
// Values are percent-encoded the way encodeURIComponent does it, so a space
// becomes %20 and never '+'. The remote verifier recomputes the digest over
// the same bytes, so the key order and the encoder are part of the wire
// contract.
//
// Example Usage:
//
//	signer, err := signing.New([]byte(secret))
//	payload, err := signer.Sign(signing.Params{"userId": "42", "apiuser": "bob"})
//	req.SetBody(payload.Body)
package signing
