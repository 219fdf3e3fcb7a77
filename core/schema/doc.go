/*
Package schema defines the canonical type model that schemagate exports.

A schema directory holds one or more YAML documents. Each document lists type
definitions in declaration order; that order is significant and is carried
verbatim into every generated declaration.

# Schema Document

	namespace: consensus

	types:
	  - name: Command
	    kind: tagged-union
	    variants:
	      - { tag: LocalOnly, payload: TransactionAtom }
	      - { tag: Prepare,   payload: TransactionAtom }
	      - { tag: EndEpoch }

	  - name: ValidatorNode
	    kind: struct
	    generics: [TAddr]
	    fields:
	      - { name: address,      type: string }
	      - { name: shard_key,    type: SubstateAddress }
	      - { name: sidechain_id, type: PublicKey, nullable: true }

	  - name: Epoch
	    kind: primitive-wrapper
	    type: u64

# Kinds

  - struct:            ordered fields
  - tagged-union:      ordered variants, each with an optional payload
  - alias:             another name for any type expression
  - primitive-wrapper: a newtype over a primitive

The shorthands union, enum, wrapper and newtype are accepted.

# Type Expressions

Field types, variant payloads and alias targets are written as type
expressions:

	u64
	Vec<SubstateAddress>
	Option<Vec<u8>>
	Map<string, Amount>
	(Epoch, Shard)
	Box<Command>
	ValidatorNode<PeerAddress>

Option marks a value as nullable. A field may also be optional (allowed to be
absent), which is a separate flag. Box marks an explicit indirection point for
recursive types.

# Parsing

	doc, err := schema.ParseFile("schemas/consensus.yaml")
	nodes, err := schema.ParseDir("schemas/")

Every node is normalized and validated on parse. Cross-node checks such as
reference resolution belong to the registry.
*/
package schema
