package bb84

import (
	"github.com/alan-christopher/qkd/bb84/bitmap"
	"github.com/alan-christopher/qkd/bb84/photon"
	"google.golang.org/protobuf/types/known/structpb"
)

// A Result is everything a single protocol run produced. Results are not
// modified after Run returns.
type Result struct {
	Variant Variant

	SenderBits    bitmap.Dense
	SenderBases   bitmap.Dense
	ReceiverBases bitmap.Dense
	ReceiverBits  bitmap.Dense

	// Intercepted is empty when no eavesdropper was present.
	Intercepted bitmap.Dense
	EveBases    bitmap.Dense
	EveBits     bitmap.Dense

	Sifted       Sifted
	CorrectedKey bitmap.Dense
	SecretKey    SecretKey
	Stats        Stats

	// AbortReason is set when the run failed its security Policy. Withheld
	// additionally records that encryption was suppressed because of it.
	AbortReason string
	Withheld    bool

	Convention Convention
	Encryption

	// Counts holds one opaque measurement histogram per channel invocation.
	Counts []map[string]int
}

// Trusted reports whether the run passed its security Policy.
func (r *Result) Trusted() bool {
	return r.AbortReason == ""
}

// ToProto renders r as a protobuf Struct for presentation layers.
func (r *Result) ToProto() (*structpb.Struct, error) {
	counts := make([]interface{}, 0, len(r.Counts))
	for _, c := range r.Counts {
		m := make(map[string]interface{}, len(c))
		for k, v := range c {
			m[k] = v
		}
		counts = append(counts, m)
	}
	positions := make([]interface{}, 0, len(r.Sifted.Positions))
	for _, p := range r.Sifted.Positions {
		positions = append(positions, p)
	}
	fields := map[string]interface{}{
		"variant":               string(r.Variant),
		"sender_bits":           ints(r.SenderBits),
		"sender_bases":          ints(r.SenderBases),
		"receiver_bases":        ints(r.ReceiverBases),
		"sender_basis_labels":   labels(r.SenderBases),
		"receiver_basis_labels": labels(r.ReceiverBases),
		"receiver_bits":         ints(r.ReceiverBits),
		"sifted_sender":         ints(r.Sifted.Sender),
		"sifted_receiver":       ints(r.Sifted.Receiver),
		"sifted_positions":      positions,
		"fidelity":              r.Stats.Fidelity,
		"loss":                  r.Stats.Loss,
		"qber":                  r.Stats.QBER,
		"qber_upper":            r.Stats.QBERUpper,
		"corrections":           r.Stats.Corrections,
		"error_corrected_key":   r.CorrectedKey.String(),
		"final_secret_key":      string(r.SecretKey),
		"cipher":                r.Convention.String(),
		"counts":                counts,
	}
	for k, v := range r.Encryption.fields() {
		fields[k] = v
	}
	if r.Intercepted.Size() > 0 {
		fields["eve_intercepted"] = ints(r.Intercepted)
		fields["eve_bases"] = ints(r.EveBases)
		fields["eve_basis_labels"] = labels(r.EveBases)
		fields["eve_bits"] = ints(r.EveBits)
	}
	if r.AbortReason != "" {
		fields["abort_reason"] = r.AbortReason
	}
	return structpb.NewStruct(fields)
}

// ToProto renders e as a protobuf Struct, using the same field names as
// Result.ToProto.
func (e Encryption) ToProto() (*structpb.Struct, error) {
	return structpb.NewStruct(e.fields())
}

func (e Encryption) fields() map[string]interface{} {
	f := map[string]interface{}{
		"original_message":      e.Message,
		"encrypted_message_hex": e.CiphertextHex,
		"decrypted_message":     e.Decrypted,
	}
	if e.SealedHex != "" {
		f["sealed_message_hex"] = e.SealedHex
	}
	if e.Skipped != "" {
		f["encryption_skipped"] = e.Skipped
	}
	return f
}

func ints(d bitmap.Dense) []interface{} {
	r := make([]interface{}, 0, d.Size())
	for _, v := range d.Ints() {
		r = append(r, v)
	}
	return r
}

// labels renders a basis bitmap as "Z"/"X" strings.
func labels(bases bitmap.Dense) []interface{} {
	r := make([]interface{}, 0, bases.Size())
	for i := 0; i < bases.Size(); i++ {
		r = append(r, photon.BasisAt(bases, i).String())
	}
	return r
}
