// Package noise wraps the Noise Protocol Framework handshake used to key
// device sessions. The protocol uses the NN pattern
// (Noise_NN_25519_ChaChaPoly_BLAKE2s): a two-message anonymous key agreement
// with no static keys, giving each session fresh AEAD keys without any key
// persistence.
//
// The handshake wrapper drives github.com/flynn/noise through the fixed
// two-message exchange:
//
//	initiator -> responder : e
//	initiator <- responder : e, ee
//
// After completion both sides hold a Transport: a stateless AEAD pair whose
// Encrypt and Decrypt take the nonce as an explicit per-message argument.
// Statelessness is what makes verbatim retransmission of a cached response
// safe: resending prior ciphertext advances no hidden counter and never
// reuses a nonce for a new plaintext.
package noise
