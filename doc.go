/*
Package sdstore implements SD files, self-describing containers of
simulation traces (on top of Bolt).

An SD file records one sample per execution cycle for each declared signal.
We implement:

1. Types: predefined scalars plus structs, multi-dimensional arrays, enums,
variants (tagged unions) and opaque imported payloads of fixed or variable
size. Named types are interned per file.

2. Elements, a forest of named nodes carrying a type, a kind and an optional
group expression.

3. Sequences, the samples recorded for each element. Every appended value is
validated against the element type. Samples of scalar and array-of-scalar
elements may be absent.

Files are opened in one of three modes (create, read, edit). All changes are
kept in memory and committed by Close in a single transaction.

# Technical Details

**Buckets.**
Bucket `sd` holds the header, the type table and the element tree. Bucket
`seq` holds one nested bucket per element, keyed by the element id. Element
ids are never reused, so a removed element never leaks samples into a new
one.

**Header**: magic "SDSTORE\x00", version (uint16), flags (uint16), reserved
(uint32), next element id (uint64), xxhash64 of the preceding 24 bytes. All
little-endian.

**Type references.**
0 means no type, 1 to 12 are scalar kinds, 64+i is entry i of the type
table. Entries only reference earlier entries.

## Binary encoding

**Samples**: scalars are little-endian and fixed-width, chars are one byte,
bools are 0 or 1. Structs concatenate their fields, arrays their items in
row-major order. Enums and variant tags are indices of 1, 2 or 4 bytes
depending on the number of alternatives. Variant payloads are zero-padded to
the largest payload unless some payload has a variable size. Imported
payloads are raw bytes; variable-size ones are prefixed with a uvarint length.

**Runs**: a sequence is a list of runs, each holding up to 65536 samples that
repeat back to back a number of times. Format:
1. Number of samples (uvarint).
2. Repeat count (uvarint).
3. Number of absence bitmap words (uvarint), then the words (uint64 LE).
4. Encoded present samples.
5. xxhash64 of all the above (uint64 LE).

The `meta` key of a sequence bucket stores the sample and run counts and a
hash of the fully expanded type spelling, so that samples are never decoded
with a type that differs from the one they were written with.
*/
package sdstore
