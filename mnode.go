// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objspace

// AST node sub-kinds. Which of a node's three union slots hold child
// references depends on the sub-kind; the case table in gcMarkChildren
// enumerates them.
const (
	nodeScope = iota
	nodeBlock
	nodeIf
	nodeCase
	nodeWhen
	nodeOptN
	nodeWhile
	nodeUntil
	nodeIter
	nodeFor
	nodeBreak
	nodeNext
	nodeRedo
	nodeRetry
	nodeBegin
	nodeRescue
	nodeResbody
	nodeEnsure
	nodeAnd
	nodeOr
	nodeMasgn
	nodeLasgn
	nodeDasgn
	nodeDasgnCurr
	nodeGasgn
	nodeIasgn
	nodeIasgn2
	nodeCdecl
	nodeCvasgn
	nodeOpAsgn1
	nodeOpAsgn2
	nodeOpAsgnAnd
	nodeOpAsgnOr
	nodeCall
	nodeFcall
	nodeVcall
	nodeSuper
	nodeZsuper
	nodeArray
	nodeZarray
	nodeValues
	nodeHash
	nodeReturn
	nodeYield
	nodeLvar
	nodeDvar
	nodeGvar
	nodeIvar
	nodeConst
	nodeCvar
	nodeNthRef
	nodeBackRef
	nodeMatch
	nodeMatch2
	nodeMatch3
	nodeLit
	nodeStr
	nodeDstr
	nodeXstr
	nodeDxstr
	nodeEvstr
	nodeDregx
	nodeDregxOnce
	nodeArgs
	nodeArgsAux
	nodeOptArg
	nodePostArg
	nodeArgscat
	nodeArgspush
	nodeSplat
	nodeToAry
	nodeBlockArg
	nodeBlockPass
	nodeDefn
	nodeDefs
	nodeAlias
	nodeValias
	nodeUndef
	nodeClass
	nodeModule
	nodeSclass
	nodeColon2
	nodeColon3
	nodeDot2
	nodeDot3
	nodeFlip2
	nodeFlip3
	nodeSelf
	nodeNil
	nodeTrue
	nodeFalse
	nodeErrinfo
	nodeDefined
	nodePostexe
	nodeAlloca
	nodeBmethod
	nodeMemo
	nodeIfunc
	nodeDsym
	nodeAttrasgn
	nodePrelude
	nodeLambda
	nodeOptblock
	nodeLast
)
