package hive

import (
	"bytes"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testWIF is a well-known, never-funded test private key (the "private
// key = 1" vector used throughout Bitcoin tutorials), used only to
// exercise the signing path — never a real account key.
const testWIF = "5HpHagT65TZzG1PH3CSu63k8DbpvD8s5ip4nEB3kEsreArNwjn7"

func TestSerializeVarint_SmallAndLarge(t *testing.T) {
	var buf bytes.Buffer
	serializeVarint(&buf, 0)
	assert.Equal(t, []byte{0x00}, buf.Bytes())

	buf.Reset()
	serializeVarint(&buf, 127)
	assert.Equal(t, []byte{0x7f}, buf.Bytes())

	buf.Reset()
	serializeVarint(&buf, 128)
	assert.Equal(t, []byte{0x80, 0x01}, buf.Bytes())
}

func TestSerializeString_LengthPrefixed(t *testing.T) {
	var buf bytes.Buffer
	serializeString(&buf, "hi")
	assert.Equal(t, []byte{0x02, 'h', 'i'}, buf.Bytes())
}

func TestSerializeStringArray(t *testing.T) {
	var buf bytes.Buffer
	serializeStringArray(&buf, []string{"a", "bb"})
	assert.Equal(t, []byte{0x02, 0x01, 'a', 0x02, 'b', 'b'}, buf.Bytes())
}

func TestSerializeAsset_EncodesAmountPrecisionSymbol(t *testing.T) {
	var buf bytes.Buffer
	err := serializeAsset(&buf, "10.000", 3, "HIVE")
	require.NoError(t, err)

	// 8 bytes amount + 1 byte precision + 7 bytes symbol
	assert.Len(t, buf.Bytes(), 16)
	assert.Equal(t, byte(3), buf.Bytes()[8])
	assert.Equal(t, "HIVE\x00\x00\x00", string(buf.Bytes()[9:16]))
}

func TestSerializeAsset_InvalidAmount(t *testing.T) {
	var buf bytes.Buffer
	err := serializeAsset(&buf, "not-a-number", 3, "HIVE")
	require.Error(t, err)
}

func TestSerializeTransferOp_ProducesNonEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	err := serializeTransferOp(&buf, "alice", "bob", "1.000", "HIVE", "memo")
	require.NoError(t, err)
	assert.NotEmpty(t, buf.Bytes())
}

func TestSerializeCustomJSONOp_ProducesNonEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	serializeCustomJSONOp(&buf, nil, []string{"alice"}, "v4vapp", `{"a":1}`)
	assert.NotEmpty(t, buf.Bytes())
}

func TestSignDigest_ProducesCompactSignature(t *testing.T) {
	digest := sha256.Sum256([]byte("test message"))
	sig, err := signDigest(testWIF, digest[:])
	require.NoError(t, err)
	assert.Len(t, sig, 130) // 65 bytes hex-encoded
}

func TestSignDigest_InvalidWIF(t *testing.T) {
	digest := sha256.Sum256([]byte("test message"))
	_, err := signDigest("not-a-wif", digest[:])
	require.Error(t, err)
}

func TestBuildAndSign_ProducesSignedTransaction(t *testing.T) {
	head := &DynamicGlobalProperties{HeadBlockNumber: 1000, Time: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	var payload bytes.Buffer
	require.NoError(t, serializeTransferOp(&payload, "alice", "bob", "1.000", "HIVE", "memo"))

	opJSON := [2]interface{}{"transfer", map[string]interface{}{"from": "alice", "to": "bob"}}

	trx, err := buildAndSign(head, transferOpID, &payload, opJSON, testWIF)
	require.NoError(t, err)
	assert.NotEmpty(t, trx.Signatures)
	assert.Equal(t, uint16(1000&0xffff), trx.RefBlockNum)
	assert.Len(t, trx.Operations, 1)
}
